package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"runwatch/internal/eventbus"
	"runwatch/internal/rundir"
	logx "runwatch/pkg/logx"
)

// Service is the scheduler loop. It owns the active-job table and is the
// only goroutine that touches it or writes markers; helper goroutines
// (process waiters, the fs-event nudge) communicate over channels only.
type Service struct {
	cfg     Config
	markers *rundir.MarkerStore
	scanner *rundir.Scanner
	ready   rundir.ReadyCheck
	launch  *launcher
	bus     eventbus.Bus
	log     logx.Logger

	active  map[string]*ActiveJob
	nActive atomic.Int64 // mirrors len(active) for cross-goroutine readers
	wake    chan struct{}

	// orphanWarned tracks runs found marked Processing without a matching
	// ActiveJob (scheduler restarted under them). Warned once per run per
	// process lifetime, then left alone for the operator.
	orphanWarned map[string]bool
}

// New builds the scheduler. cfg must already be validated for types and
// required-ness; New additionally parses the argument template and
// rejects unknown placeholders.
func New(cfg Config, markers *rundir.MarkerStore, starter Starter, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent jobs must be >= 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("check interval must be > 0, got %s", cfg.Interval)
	}
	tmpl, err := parseCommandTemplate(cfg.Arguments, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if starter == nil {
		starter = NewStarter()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	return &Service{
		cfg:     cfg,
		markers: markers,
		scanner: rundir.NewScanner(markers, log),
		ready:   rundir.ReadyCheck{Signal: cfg.ReadySignal},
		launch: &launcher{
			executable:    cfg.Executable,
			outputBase:    cfg.OutputBase,
			captureOutput: cfg.CaptureOutput,
			tmpl:          tmpl,
			markers:       markers,
			starter:       starter,
			limiter:       newLimiter(cfg.LaunchRatePerSec),
			bus:           bus,
			log:           log,
		},
		bus:          bus,
		log:          log,
		active:       make(map[string]*ActiveJob),
		wake:         make(chan struct{}, 1),
		orphanWarned: make(map[string]bool),
	}, nil
}

// Wake shortens the current inter-cycle sleep. Safe to call from any
// goroutine; redundant wakes coalesce.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ActiveCount reports how many launched jobs are currently tracked.
// Safe from any goroutine; the value is a snapshot.
func (s *Service) ActiveCount() int { return int(s.nActive.Load()) }

// Run drives the scheduler until ctx is canceled: reap finished jobs,
// scan for pending runs, launch the ready ones up to the concurrency
// ceiling, sleep. Cancellation drains: one final reap for bookkeeping,
// then return. Launched processes are never touched and keep running.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("watcher started",
		logx.String("watch_dir", s.cfg.WatchDir),
		logx.String("executable", s.cfg.Executable),
		logx.String("output_base", s.cfg.OutputBase),
		logx.String("ready_signal", s.cfg.ReadySignal),
		logx.Duration("interval", s.cfg.Interval),
		logx.Int("max_concurrent", s.cfg.MaxConcurrent))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeWatcherStarted})

	for ctx.Err() == nil {
		s.reap()
		if ctx.Err() != nil {
			break
		}
		s.Cycle()
		s.sleep(ctx)
	}

	// Draining: record anything that finished during the last sleep, then
	// leave the rest running unsupervised.
	s.reap()
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeWatcherDraining})
	for _, name := range s.activeNames() {
		job := s.active[name]
		s.log.Info("leaving job running unsupervised",
			logx.String("run", name),
			logx.String("job_id", job.ID),
			logx.Int("pid", job.PID))
	}
	s.log.Info("watcher stopped", logx.Int("orphaned_jobs", len(s.active)))
	return nil
}

// Cycle performs one scan-and-launch pass: every Pending run whose
// readiness signal is present is launched, in lexicographic order, while
// slots remain. Exported for tests, which step the scheduler cycle by
// cycle instead of racing the sleep.
func (s *Service) Cycle() {
	ceilingLogged := false
	for run, state := range s.scanner.Runs(s.cfg.WatchDir) {
		switch state {
		case rundir.Completed, rundir.Failed:
			// Settled; markers are never revisited.

		case rundir.Processing:
			s.noteUntracked(run)

		case rundir.Pending:
			// Re-checked per candidate: each successful launch takes a slot.
			if len(s.active) >= s.cfg.MaxConcurrent {
				if !ceilingLogged {
					s.log.Debug("concurrency ceiling reached, deferring pending runs",
						logx.Int("active", len(s.active)),
						logx.Int("max_concurrent", s.cfg.MaxConcurrent))
					ceilingLogged = true
				}
				continue
			}
			ready, err := s.ready.Ready(run)
			if err != nil {
				s.log.Warn("readiness check failed, skipping run this cycle",
					logx.String("run", run.Name), logx.Err(err))
				continue
			}
			if !ready {
				s.log.Debug("run waiting for readiness signal",
					logx.String("run", run.Name),
					logx.String("signal", s.cfg.ReadySignal))
				continue
			}

			job, err := s.launch.Launch(run)
			if err != nil {
				if errors.Is(err, errThrottled) {
					s.log.Debug("launch rate exhausted, deferring remaining runs")
					return
				}
				s.log.Warn("launch failed",
					logx.String("run", run.Name), logx.Err(err))
				continue
			}
			if job != nil {
				s.active[job.Run.Name] = job
				s.nActive.Store(int64(len(s.active)))
			}
		}
	}
}

// noteUntracked warns (once) about a run marked Processing that this
// scheduler did not launch, typically left behind by a crash. Whether
// the process is still running cannot be known here, so the run is left
// untouched for the operator to resolve.
func (s *Service) noteUntracked(run rundir.Run) {
	if _, ours := s.active[run.Name]; ours {
		return
	}
	if s.orphanWarned[run.Name] {
		return
	}
	s.orphanWarned[run.Name] = true
	s.log.Warn("run marked processing but not tracked, manual check advised",
		logx.String("run", run.Name))
}

// sleep waits out the poll interval, returning early on cancellation or a
// Wake (new directory appeared under the watch root).
func (s *Service) sleep(ctx context.Context) {
	t := time.NewTimer(s.cfg.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-s.wake:
		s.log.Debug("woken by filesystem event")
	}
}
