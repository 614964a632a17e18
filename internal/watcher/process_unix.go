//go:build !windows

package watcher

import (
	"os/exec"
	"syscall"
)

// detachCommand puts the child into its own process group so terminal
// signals aimed at the scheduler (Ctrl-C, systemd stop) do not propagate
// to running jobs.
func detachCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
