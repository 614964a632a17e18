package watcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// execStarter launches real OS processes. Children are detached from the
// scheduler's process group so an interrupt delivered to the scheduler
// never reaches them; they run to completion even after the scheduler
// exits.
type execStarter struct{}

// NewStarter returns the production process starter.
func NewStarter() Starter { return execStarter{} }

func (execStarter) Start(spec CommandSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	detachCommand(cmd)

	var logFile *os.File
	if spec.LogPath != "" {
		f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open job log %s: %w", spec.LogPath, err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}

	done := make(chan ExitResult, 1)
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		done <- exitResult(err)
	}()

	return &osProcess{pid: cmd.Process.Pid, done: done}, nil
}

func exitResult(waitErr error) ExitResult {
	if waitErr == nil {
		return ExitResult{Code: 0}
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return ExitResult{Code: ee.ExitCode()}
	}
	return ExitResult{Err: waitErr}
}

type osProcess struct {
	pid  int
	done chan ExitResult
}

func (p *osProcess) PID() int                { return p.pid }
func (p *osProcess) Done() <-chan ExitResult { return p.done }
