package rundir

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	logx "runwatch/pkg/logx"
)

// Run is a discovered run directory.
type Run struct {
	Name string // directory base name, also the run's identity in logs
	Dir  string // full path under the watch root
}

// Scanner enumerates run directories under a watch root and classifies
// each by its marker state.
type Scanner struct {
	markers *MarkerStore
	log     logx.Logger
}

func NewScanner(markers *MarkerStore, log logx.Logger) *Scanner {
	return &Scanner{markers: markers, log: log}
}

// Runs yields every run directory under root with its current state, in
// lexicographic name order. The sequence is recomputed from disk on every
// range, so each poll cycle sees fresh state.
//
// Entries are skipped when they are not directories (symlinks are
// followed), or when their name starts with a dot. Per-entry errors are
// logged and skipped; a failure to read root itself ends the scan early
// with an error log. Nothing here is fatal to the caller.
func (s *Scanner) Runs(root string) iter.Seq2[Run, State] {
	return func(yield func(Run, State) bool) {
		entries, err := os.ReadDir(root)
		if err != nil {
			s.log.Error("scan failed to read watch directory",
				logx.String("dir", root), logx.Err(err))
			return
		}

		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			dir := filepath.Join(root, name)

			if !e.IsDir() {
				if e.Type()&fs.ModeSymlink == 0 {
					continue
				}
				fi, err := os.Stat(dir)
				if err != nil {
					s.log.Warn("scan skipping unreadable entry",
						logx.String("run", name), logx.Err(err))
					continue
				}
				if !fi.IsDir() {
					continue
				}
			}

			state, err := s.markers.State(dir)
			if err != nil {
				s.log.Warn("scan skipping run with unreadable markers",
					logx.String("run", name), logx.Err(err))
				continue
			}
			if !yield(Run{Name: name, Dir: dir}, state) {
				return
			}
		}
	}
}
