//go:build !linux

package sdnotify

import "time"

func Ready()    {}
func Stopping() {}
func Watchdog() {}

func WatchdogInterval() time.Duration { return 0 }
