package watcher

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	logx "runwatch/pkg/logx"
)

// Notifier shortens the scheduler's poll sleep when new entries appear
// under the watch root, so freshly delivered runs are picked up without
// waiting out the interval. It is purely an accelerator: detection
// correctness always rests on the periodic scan, so any failure here
// degrades to plain polling.
type Notifier struct {
	root string
	wake func()
	log  logx.Logger
}

func NewNotifier(root string, wake func(), log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{root: root, wake: wake, log: log}
}

// Watch blocks delivering wake-ups until ctx is canceled or the watcher
// breaks. Run it under a supervisor with restart backoff; a returned
// error means "recreate me".
func (n *Notifier) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(n.root); err != nil {
		return fmt.Errorf("watch %s: %w", n.root, err)
	}
	n.log.Debug("watching for filesystem events", logx.String("dir", n.root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("fs watcher event channel closed")
			}
			// Only arrivals matter; the scan ignores removals naturally.
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				n.wake()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("fs watcher error channel closed")
			}
			n.log.Warn("fs watcher error", logx.Err(err))
		}
	}
}
