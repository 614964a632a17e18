package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"runwatch/internal/eventbus"
	"runwatch/internal/rundir"
	logx "runwatch/pkg/logx"
)

// errThrottled means the launch-rate budget for this moment is spent; the
// cycle stops launching and leaves the remaining candidates Pending.
var errThrottled = errors.New("launch rate exhausted")

// launcher performs the Pending -> Processing transition: claim the run
// via its marker, then start the processing command detached.
type launcher struct {
	executable    string
	outputBase    string
	captureOutput bool

	tmpl    *commandTemplate
	markers *rundir.MarkerStore
	starter Starter
	limiter *rate.Limiter // nil when unthrottled
	bus     eventbus.Bus
	log     logx.Logger
}

// Launch attempts to start the processing command for run.
//
// Returns (job, nil) on success. Returns (nil, nil) when the run was
// claimed by someone else (marker already present); not an error, just
// skipped. Returns (nil, errThrottled) when the rate budget is spent.
// Any other error leaves the run either Pending (nothing durable written
// yet, retried next cycle) or Failed (the spawn itself failed, terminal).
func (l *launcher) Launch(run rundir.Run) (*ActiveJob, error) {
	if l.limiter != nil && !l.limiter.Allow() {
		return nil, errThrottled
	}

	inputDir, err := filepath.Abs(run.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve input dir %s: %w", run.Dir, err)
	}
	outputDir, err := filepath.Abs(filepath.Join(l.outputBase, run.Name))
	if err != nil {
		return nil, fmt.Errorf("resolve output dir for %s: %w", run.Name, err)
	}

	// Output dir first. If this fails nothing has been written in the run
	// directory, so the run stays Pending and is retried next cycle.
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}

	jobID := uuid.NewString()
	startedAt := time.Now()

	// Exclusive create: first writer wins. Losing the claim is expected
	// after a crash-and-restart or a slow previous cycle.
	note := fmt.Sprintf("job_id=%s started=%s", jobID, startedAt.Format(time.RFC3339))
	if err := l.markers.MarkProcessing(run.Dir, note); err != nil {
		if errors.Is(err, rundir.ErrAlreadyMarked) {
			l.log.Debug("run already claimed, skipping",
				logx.String("run", run.Name))
			return nil, nil
		}
		return nil, err
	}

	spec := CommandSpec{
		Path: l.executable,
		Args: l.tmpl.Args(inputDir, outputDir),
	}
	if l.captureOutput {
		spec.LogPath = filepath.Join(outputDir, "job.log")
	}

	proc, err := l.starter.Start(spec)
	if err != nil {
		// The claim marker is already durable, so the run must not revert
		// to Pending: record the failure and leave it for the operator.
		detail := fmt.Sprintf("job_id=%s spawn error: %v", jobID, err)
		if merr := l.markers.MarkTerminal(run.Dir, rundir.Failed, detail); merr != nil {
			l.log.Error("failed to mark run after spawn error",
				logx.String("run", run.Name), logx.Err(merr))
		}
		l.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRunLaunchFailed,
			Run:  eventbus.RunInfo{Name: run.Name, JobID: jobID, Error: err.Error()},
		})
		return nil, fmt.Errorf("start %s for %s: %w", l.executable, run.Name, err)
	}

	job := &ActiveJob{
		Run:       run,
		ID:        jobID,
		PID:       proc.PID(),
		StartedAt: startedAt,
		proc:      proc,
	}
	l.log.Info("launched processing job",
		logx.String("run", run.Name),
		logx.String("job_id", jobID),
		logx.Int("pid", job.PID),
		logx.String("output_dir", outputDir))
	l.bus.Publish(eventbus.Event{
		Type: eventbus.TypeRunLaunched,
		Run:  eventbus.RunInfo{Name: run.Name, JobID: jobID, PID: job.PID},
	})
	return job, nil
}

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}
