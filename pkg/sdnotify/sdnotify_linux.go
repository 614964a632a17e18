//go:build linux

// Package sdnotify reports daemon lifecycle to systemd when running under
// a Type=notify unit. Outside systemd every call is a cheap no-op.
package sdnotify

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready signals that startup is complete.
func Ready() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping signals that shutdown has begun.
func Stopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Watchdog pings the systemd watchdog.
func Watchdog() { _, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog) }

// WatchdogInterval returns the interval at which Watchdog should be
// called, or 0 when no watchdog is configured. systemd recommends pinging
// at half the configured WatchdogSec.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}
