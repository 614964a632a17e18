// Package watcher is the scheduling core: it discovers pending run
// directories under a watch root, launches the processing command for
// each ready run while holding a concurrency ceiling, polls the launched
// processes for completion, and records outcomes as marker files.
package watcher

import (
	"time"

	"runwatch/internal/rundir"
)

// Config is the watcher's view of the application configuration,
// flattened and already validated for types and required-ness. Template
// and path semantics are checked in New.
type Config struct {
	WatchDir    string
	ReadySignal string
	Interval    time.Duration

	Executable string
	Arguments  string // whitespace-separated template, see placeholders in command.go
	ConfigPath string
	OutputBase string

	MaxConcurrent    int
	LaunchRatePerSec int
	CaptureOutput    bool
}

// ExitResult is delivered exactly once per launched process by its wait
// goroutine.
type ExitResult struct {
	Code int
	// Err is set when waiting itself failed (not when the process exited
	// non-zero). Code is meaningless in that case.
	Err error
}

// Process is a handle to a launched external job, sufficient to learn its
// exit status without blocking.
type Process interface {
	PID() int
	// Done yields the process's ExitResult once it has exited. The
	// channel is buffered; the wait goroutine never blocks on it.
	Done() <-chan ExitResult
}

// CommandSpec is what a Starter needs to launch one processing command.
type CommandSpec struct {
	Path string
	Args []string
	// LogPath receives the child's combined stdout/stderr when non-empty;
	// otherwise the output is discarded.
	LogPath string
}

// Starter launches processing commands. The production implementation
// spawns detached OS processes; tests substitute a fake so no scheduler
// test ever shells out.
type Starter interface {
	Start(spec CommandSpec) (Process, error)
}

// ActiveJob is one launched, not-yet-reaped external process. Entries
// live in the scheduler loop's active table and are touched only by the
// loop goroutine.
type ActiveJob struct {
	Run       rundir.Run
	ID        string
	PID       int
	StartedAt time.Time

	proc Process
	// result is set once the exit has been observed but not yet recorded
	// (the marker write can fail and be retried).
	result *ExitResult
}
