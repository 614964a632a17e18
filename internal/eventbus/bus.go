package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names a run-lifecycle event.
type Type string

const (
	// TypeRunLaunched fires after a processing command has been started
	// and its marker written.
	TypeRunLaunched Type = "run.launched"

	// TypeRunCompleted fires when a processing command exits with status 0.
	TypeRunCompleted Type = "run.completed"

	// TypeRunFailed fires when a processing command exits non-zero
	// or its wait fails.
	TypeRunFailed Type = "run.failed"

	// TypeRunLaunchFailed fires when a run could not be started at all
	// (spawn error). The run is marked failed without ever running.
	TypeRunLaunchFailed Type = "run.launch_failed"

	// TypeWatcherStarted fires once when the scheduler loop begins.
	TypeWatcherStarted Type = "watcher.started"

	// TypeWatcherDraining fires once when shutdown is requested and the
	// loop stops launching new work.
	TypeWatcherDraining Type = "watcher.draining"
)

// Event is a lightweight, in-memory signal used to decouple the scheduler
// loop from journaling and reporting.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type Type
	Time time.Time
	Run  RunInfo
}

// RunInfo carries the per-run payload for run.* events.
// Zero value for watcher.* events.
type RunInfo struct {
	Name     string        `json:"name,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
	PID      int           `json:"pid,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
