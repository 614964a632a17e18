// Package rundir models sequencing-run directories: the marker files that
// carry a run's processing state, discovery of runs under a watch root,
// and the readiness check that gates launching.
package rundir

// State is the processing state of a run directory, derived solely from
// which marker file is present inside it.
type State int

const (
	// Pending means no marker exists. It is the implicit initial state
	// and is never written to disk.
	Pending State = iota
	Processing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is an end state. Terminal states are never
// left by the watcher; re-processing a failed run is an operator action
// (remove the marker).
func (s State) Terminal() bool { return s == Completed || s == Failed }

// transitions is the legal state machine. Terminal states have no exits.
var transitions = map[State]map[State]bool{
	Pending:    {Processing: true},
	Processing: {Completed: true, Failed: true},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool { return transitions[from][to] }
