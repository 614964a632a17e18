//go:build windows

package watcher

import "os/exec"

func detachCommand(cmd *exec.Cmd) {}
