package app

import (
	"context"
	"time"

	"runwatch/internal/eventbus"
	"runwatch/internal/journal"
	logx "runwatch/pkg/logx"
)

// journalPump subscribes to run-lifecycle events and appends them to the
// journal. It is best effort: a failed append is logged and dropped, the
// scheduler never waits on it.
type journalPump struct {
	store journal.Store
	log   logx.Logger

	events <-chan eventbus.Event
	unsub  func()
	done   chan struct{}
}

func newJournalPump(bus eventbus.Bus, store journal.Store, log logx.Logger) *journalPump {
	ch, unsub := bus.Subscribe(64)
	return &journalPump{
		store:  store,
		log:    log,
		events: ch,
		unsub:  unsub,
		done:   make(chan struct{}),
	}
}

func (p *journalPump) start() {
	go func() {
		defer close(p.done)
		// Runs until unsubscribe closes the channel, so events published
		// during the final drain cycle still land in the journal.
		for ev := range p.events {
			p.record(ev)
		}
	}()
}

// stop must be called only after the publishers have gone quiet.
func (p *journalPump) stop() {
	p.unsub()
	<-p.done
}

func (p *journalPump) record(ev eventbus.Event) {
	e, ok := entryFor(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.AppendTransition(ctx, e); err != nil {
		p.log.Warn("journal append failed",
			logx.String("run", e.Run),
			logx.String("to", e.To),
			logx.Err(err))
	}
}

func entryFor(ev eventbus.Event) (journal.Entry, bool) {
	e := journal.Entry{
		At:       ev.Time,
		JobID:    ev.Run.JobID,
		Run:      ev.Run.Name,
		ExitCode: ev.Run.ExitCode,
		Detail:   ev.Run.Error,
	}
	switch ev.Type {
	case eventbus.TypeRunLaunched:
		e.From, e.To = "pending", "processing"
	case eventbus.TypeRunCompleted:
		e.From, e.To = "processing", "completed"
	case eventbus.TypeRunFailed:
		e.From, e.To = "processing", "failed"
	case eventbus.TypeRunLaunchFailed:
		e.From, e.To = "pending", "failed"
	default:
		return journal.Entry{}, false
	}
	return e, true
}
