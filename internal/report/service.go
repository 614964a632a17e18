// Package report logs a periodic activity summary (runs launched,
// completed and failed since the previous report) on a cron schedule.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"runwatch/internal/journal"
	logx "runwatch/pkg/logx"
)

// Service drives the scheduled summary. It reads from the journal and
// never touches scheduler state beyond a snapshot of the active count.
type Service struct {
	store journal.Store
	// activeCount snapshots how many jobs are currently running.
	activeCount func() int
	log         logx.Logger

	c     *cron.Cron
	entry cron.EntryID

	mu    sync.Mutex
	since time.Time
}

// New validates the schedule and builds the service. A bad schedule is a
// configuration error and fails startup.
func New(schedule string, store journal.Store, activeCount func() int, log logx.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("report: journal store is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("report.schedule: invalid cron spec %q: %w", schedule, err)
	}

	s := &Service{
		store:       store,
		activeCount: activeCount,
		log:         log,
		c:           cron.New(cron.WithParser(parser)),
		since:       time.Now(),
	}
	id, err := s.c.AddFunc(schedule, s.emit)
	if err != nil {
		return nil, fmt.Errorf("report.schedule: %w", err)
	}
	s.entry = id
	return s, nil
}

func (s *Service) Start() {
	s.c.Start()
	s.log.Info("activity report scheduled",
		logx.Time("next", s.c.Entry(s.entry).Next))
}

// Stop halts the schedule and waits for an in-flight report to finish.
func (s *Service) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}

func (s *Service) emit() {
	s.mu.Lock()
	since := s.since
	s.since = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sum, err := s.store.Summarize(ctx, since)
	if err != nil {
		s.log.Warn("activity report failed", logx.Err(err))
		return
	}

	active := 0
	if s.activeCount != nil {
		active = s.activeCount()
	}
	s.log.Info("activity report",
		logx.Time("since", since),
		logx.Int("launched", sum.Launched),
		logx.Int("completed", sum.Completed),
		logx.Int("failed", sum.Failed),
		logx.Int("active", active))
}
