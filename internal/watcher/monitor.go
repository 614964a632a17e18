package watcher

import (
	"fmt"
	"sort"
	"time"

	"runwatch/internal/eventbus"
	"runwatch/internal/rundir"
	logx "runwatch/pkg/logx"
)

// reap performs one non-blocking pass over the active table, recording the
// outcome of every job whose process has exited. It runs at the top of
// every cycle, including the final drain pass, so a slot freed by a
// just-finished job is reusable within the same cycle.
func (s *Service) reap() {
	for _, name := range s.activeNames() {
		job := s.active[name]
		if job.result == nil {
			select {
			case res := <-job.proc.Done():
				job.result = &res
			default:
				continue // still running
			}
		}
		s.finish(job)
	}
}

// finish writes the terminal marker for an exited job and drops it from
// the active table. If the marker write fails the job is kept, with its
// exit result, so the write is retried on the next cycle instead of the
// run silently losing its outcome.
func (s *Service) finish(job *ActiveJob) {
	res := *job.result
	took := time.Since(job.StartedAt).Round(time.Millisecond)

	state := rundir.Completed
	detail := fmt.Sprintf("job_id=%s exit_code=%d", job.ID, res.Code)
	if res.Err != nil {
		state = rundir.Failed
		detail = fmt.Sprintf("job_id=%s wait error: %v", job.ID, res.Err)
	} else if res.Code != 0 {
		state = rundir.Failed
	}

	if err := s.markers.MarkTerminal(job.Run.Dir, state, detail); err != nil {
		s.log.Error("failed to record run outcome, will retry",
			logx.String("run", job.Run.Name),
			logx.String("job_id", job.ID),
			logx.Err(err))
		return
	}
	delete(s.active, job.Run.Name)
	s.nActive.Store(int64(len(s.active)))

	info := eventbus.RunInfo{
		Name:     job.Run.Name,
		JobID:    job.ID,
		PID:      job.PID,
		ExitCode: res.Code,
		Duration: took,
	}
	if res.Err != nil {
		info.Error = res.Err.Error()
	}

	if state == rundir.Completed {
		s.log.Info("run completed",
			logx.String("run", job.Run.Name),
			logx.String("job_id", job.ID),
			logx.Int("exit_code", res.Code),
			logx.Duration("took", took))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunCompleted, Run: info})
		return
	}
	s.log.Warn("run failed",
		logx.String("run", job.Run.Name),
		logx.String("job_id", job.ID),
		logx.Int("exit_code", res.Code),
		logx.Duration("took", took),
		logx.Err(res.Err))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFailed, Run: info})
}

// activeNames returns the active run names sorted, so reaping and its log
// output are deterministic.
func (s *Service) activeNames() []string {
	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
