package rundir

import (
	"errors"
	"os"
	"path/filepath"
)

// ReadyCheck gates launching on the presence of a completion signal file
// written by the instrument as its final act.
type ReadyCheck struct {
	// Signal is the filename looked for inside each run directory.
	// Empty means every discovered run is immediately ready.
	Signal string
}

// Ready reports whether run may be processed. The check is a pure
// predicate: it never creates, modifies or removes anything.
func (r ReadyCheck) Ready(run Run) (bool, error) {
	if r.Signal == "" {
		return true, nil
	}
	fi, err := os.Stat(filepath.Join(run.Dir, r.Signal))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}
