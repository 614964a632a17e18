package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrAlreadyMarked is returned by MarkProcessing when the marker already
// exists, i.e. another writer (or an earlier incarnation of this process)
// claimed the run first.
var ErrAlreadyMarked = errors.New("run already marked")

// MarkerStore owns the mapping between marker filenames and states and
// performs all marker I/O. A marker's presence (by name) is the state;
// the single line written inside is informational and never read back.
type MarkerStore struct {
	names map[State]string
}

// NewMarkerStore validates the three marker filenames and returns a store.
// Names must be bare filenames, distinct from each other.
func NewMarkerStore(processing, completed, failed string) (*MarkerStore, error) {
	for _, n := range []string{processing, completed, failed} {
		if n == "" || n == "." || n == ".." || strings.ContainsAny(n, `/\`) {
			return nil, fmt.Errorf("marker name %q: must be a bare filename", n)
		}
	}
	if processing == completed || processing == failed || completed == failed {
		return nil, errors.New("marker names must be distinct")
	}
	return &MarkerStore{names: map[State]string{
		Processing: processing,
		Completed:  completed,
		Failed:     failed,
	}}, nil
}

// Path returns the marker path for state s inside dir.
func (m *MarkerStore) Path(dir string, s State) string {
	return filepath.Join(dir, m.names[s])
}

// State derives dir's state from which markers exist.
//
// A crash between MarkTerminal's two steps can leave a terminal marker and
// Processing behind together. The terminal marker wins: it was written
// first, and transitions out of terminal states don't exist.
func (m *MarkerStore) State(dir string) (State, error) {
	for _, s := range []State{Completed, Failed, Processing} {
		_, err := os.Stat(m.Path(dir, s))
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Pending, fmt.Errorf("stat %s marker in %s: %w", s, dir, err)
		}
	}
	return Pending, nil
}

// MarkProcessing claims dir for launching by creating the Processing
// marker exclusively. ErrAlreadyMarked means the claim was lost and the
// run must be skipped.
func (m *MarkerStore) MarkProcessing(dir, note string) error {
	path := m.Path(dir, Processing)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrAlreadyMarked
		}
		return fmt.Errorf("mark processing %s: %w", dir, err)
	}
	if note != "" {
		if _, err := f.WriteString(note + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("write processing marker %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close processing marker %s: %w", path, err)
	}
	return nil
}

// MarkTerminal records a run's outcome. The terminal marker is written
// first and the Processing marker removed after, so an ill-timed crash
// leaves the run resolvable (see State) instead of reverting it to
// Pending and risking a double launch.
func (m *MarkerStore) MarkTerminal(dir string, s State, note string) error {
	if !s.Terminal() {
		return fmt.Errorf("mark terminal %s: %s is not a terminal state", dir, s)
	}
	path := m.Path(dir, s)
	data := ""
	if note != "" {
		data = note + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("mark %s %s: %w", s, dir, err)
	}
	if err := os.Remove(m.Path(dir, Processing)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear processing marker in %s: %w", dir, err)
	}
	return nil
}
