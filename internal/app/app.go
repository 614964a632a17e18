// Package app wires configuration, logging, the journal, the scheduler
// and its helpers into one lifecycle: New builds everything or fails
// fast, Start spins it up, Stop drains it.
package app

import (
	"context"
	"fmt"
	"time"

	"runwatch/internal/config"
	"runwatch/internal/eventbus"
	"runwatch/internal/journal"
	"runwatch/internal/report"
	"runwatch/internal/rundir"
	"runwatch/internal/runtime/supervisor"
	"runwatch/internal/watcher"
	logx "runwatch/pkg/logx"
	"runwatch/pkg/sdnotify"
)

type App struct {
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	store   journal.Store // nil when the journal is disabled
	watcher *watcher.Service
	report  *report.Service // nil when no report is configured

	sup  *supervisor.Supervisor
	pump *journalPump
}

// New loads and validates the configuration and constructs every
// component. Any error here is fatal to startup; nothing has started yet.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a := &App{cfg: cfg, logs: logs, log: log, bus: eventbus.New()}

	markers, err := rundir.NewMarkerStore(
		cfg.Markers.Processing, cfg.Markers.Completed, cfg.Markers.Failed)
	if err != nil {
		logs.Close()
		return nil, err
	}

	if cfg.Journal != nil {
		busy, _ := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
		store, err := journal.Open(journal.Config{
			Driver:      cfg.Journal.Driver,
			Path:        cfg.Journal.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("component", "journal")))
		if err != nil {
			logs.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.store = store
	}

	w, err := watcher.New(watcher.Config{
		WatchDir:         cfg.Watcher.WatchDirectory,
		ReadySignal:      cfg.Watcher.ReadySignalFile,
		Interval:         cfg.Watcher.CheckInterval.Duration(),
		Executable:       cfg.Job.Executable,
		Arguments:        cfg.Job.Arguments,
		ConfigPath:       cfg.Job.ConfigPath,
		OutputBase:       cfg.Job.OutputBaseDirectory,
		MaxConcurrent:    cfg.Job.MaxConcurrentJobs,
		LaunchRatePerSec: cfg.Job.LaunchRatePerSec,
		CaptureOutput:    cfg.Job.CaptureOutput,
	}, markers, nil, a.bus, log.With(logx.String("component", "watcher")))
	if err != nil {
		a.closeQuiet()
		return nil, err
	}
	a.watcher = w

	if cfg.Report != nil {
		r, err := report.New(cfg.Report.Schedule, a.store, w.ActiveCount,
			log.With(logx.String("component", "report")))
		if err != nil {
			a.closeQuiet()
			return nil, err
		}
		a.report = r
	}

	return a, nil
}

// Start launches the scheduler and its helpers. The supervisor inherits
// ctx, so canceling it (the process signal context) begins the drain.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if a.store != nil {
		a.pump = newJournalPump(a.bus, a.store, a.log.With(logx.String("component", "journal")))
		a.pump.start()
	}

	a.sup.Go("watcher", a.watcher.Run)

	if a.cfg.Watcher.WatchEventsEnabled() {
		n := watcher.NewNotifier(a.cfg.Watcher.WatchDirectory, a.watcher.Wake,
			a.log.With(logx.String("component", "notify")))
		a.sup.GoRestart("watcher.notify", n.Watch,
			supervisor.WithRestartBackoff(time.Second, time.Minute))
	}

	if a.report != nil {
		a.report.Start()
	}

	if iv := sdnotify.WatchdogInterval(); iv > 0 {
		a.sup.Go0("watchdog", func(ctx context.Context) {
			t := time.NewTicker(iv)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					sdnotify.Watchdog()
				}
			}
		})
	}

	sdnotify.Ready()
	return nil
}

// Stop drains the scheduler, flushes the journal and closes the sinks.
// Launched processing jobs keep running; only bookkeeping stops.
func (a *App) Stop(ctx context.Context) error {
	sdnotify.Stopping()

	if a.report != nil {
		a.report.Stop()
	}

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}

	// The watcher has returned, so every event is published; let the pump
	// drain before the store closes.
	if a.pump != nil {
		a.pump.stop()
	}
	a.closeQuiet()
	return err
}

func (a *App) closeQuiet() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing journal", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
