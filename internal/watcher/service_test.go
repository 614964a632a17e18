package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"runwatch/internal/eventbus"
	"runwatch/internal/rundir"
	logx "runwatch/pkg/logx"
)

// fakeProc is a launched process whose exit a test delivers by hand.
type fakeProc struct {
	pid  int
	done chan ExitResult
}

func (p *fakeProc) PID() int                { return p.pid }
func (p *fakeProc) Done() <-chan ExitResult { return p.done }

func (p *fakeProc) exit(code int) { p.done <- ExitResult{Code: code} }

// fakeStarter records launches and never runs anything.
type fakeStarter struct {
	specs []CommandSpec
	procs []*fakeProc
	err   error // returned by Start when set
}

func (f *fakeStarter) Start(spec CommandSpec) (Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, spec)
	p := &fakeProc{pid: 1000 + len(f.procs), done: make(chan ExitResult, 1)}
	f.procs = append(f.procs, p)
	return p, nil
}

type fixture struct {
	svc     *Service
	starter *fakeStarter
	markers *rundir.MarkerStore
	watch   string
	output  string
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	root := t.TempDir()
	watch := filepath.Join(root, "runs")
	output := filepath.Join(root, "out")
	if err := os.MkdirAll(watch, 0o755); err != nil {
		t.Fatalf("mkdir watch: %v", err)
	}

	cfg := Config{
		WatchDir:      watch,
		Interval:      time.Minute,
		Executable:    "/opt/basecall/bin/basecall",
		Arguments:     "-i {input_dir} -o {output_dir}",
		OutputBase:    output,
		MaxConcurrent: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	markers, err := rundir.NewMarkerStore(".processing", ".completed", ".failed")
	if err != nil {
		t.Fatalf("NewMarkerStore: %v", err)
	}
	starter := &fakeStarter{}
	svc, err := New(cfg, markers, starter, eventbus.New(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{svc: svc, starter: starter, markers: markers, watch: watch, output: output}
}

func (f *fixture) addRun(t *testing.T, name string, extra ...string) string {
	t.Helper()
	dir := filepath.Join(f.watch, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir run %s: %v", name, err)
	}
	for _, fn := range extra {
		if err := os.WriteFile(filepath.Join(dir, fn), nil, 0o644); err != nil {
			t.Fatalf("write %s in %s: %v", fn, name, err)
		}
	}
	return dir
}

func (f *fixture) state(t *testing.T, name string) rundir.State {
	t.Helper()
	st, err := f.markers.State(filepath.Join(f.watch, name))
	if err != nil {
		t.Fatalf("State(%s): %v", name, err)
	}
	return st
}

func TestCycleLaunchesInOrderUpToCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")
	f.addRun(t, "run_b")
	f.addRun(t, "run_c")

	f.svc.Cycle()

	if got := len(f.starter.specs); got != 2 {
		t.Fatalf("launched %d jobs, want 2 (the ceiling)", got)
	}
	if st := f.state(t, "run_a"); st != rundir.Processing {
		t.Fatalf("run_a state = %s, want processing", st)
	}
	if st := f.state(t, "run_b"); st != rundir.Processing {
		t.Fatalf("run_b state = %s, want processing", st)
	}
	if st := f.state(t, "run_c"); st != rundir.Pending {
		t.Fatalf("run_c state = %s, want pending (no slot left)", st)
	}
	if n := f.svc.ActiveCount(); n != 2 {
		t.Fatalf("active count = %d, want 2", n)
	}

	// Lexicographic candidate order: run_a got the first slot.
	wantInput := filepath.Join(f.watch, "run_a")
	wantOutput := filepath.Join(f.output, "run_a")
	spec := f.starter.specs[0]
	if spec.Path != "/opt/basecall/bin/basecall" {
		t.Fatalf("spec.Path = %q", spec.Path)
	}
	wantArgs := []string{"-i", wantInput, "-o", wantOutput}
	if len(spec.Args) != len(wantArgs) {
		t.Fatalf("spec.Args = %v, want %v", spec.Args, wantArgs)
	}
	for i := range wantArgs {
		if spec.Args[i] != wantArgs[i] {
			t.Fatalf("spec.Args[%d] = %q, want %q", i, spec.Args[i], wantArgs[i])
		}
	}

	// The output directory was created before the spawn.
	if fi, err := os.Stat(wantOutput); err != nil || !fi.IsDir() {
		t.Fatalf("output dir for run_a missing: %v", err)
	}
}

func TestNoopCycleLaunchesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")

	f.svc.Cycle()
	if len(f.starter.specs) != 1 {
		t.Fatalf("first cycle launched %d jobs, want 1", len(f.starter.specs))
	}

	// No filesystem change in between: the second cycle must be a no-op.
	f.svc.Cycle()
	if len(f.starter.specs) != 1 {
		t.Fatalf("idle cycle launched %d extra jobs, want 0", len(f.starter.specs)-1)
	}
}

func TestReadinessSignalGatesLaunch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.ReadySignal = "RTAComplete.txt" })
	dir := f.addRun(t, "run_a")

	for i := 0; i < 3; i++ {
		f.svc.Cycle()
	}
	if len(f.starter.specs) != 0 {
		t.Fatalf("launched %d jobs without the readiness signal, want 0", len(f.starter.specs))
	}
	if st := f.state(t, "run_a"); st != rundir.Pending {
		t.Fatalf("run_a state = %s, want pending", st)
	}

	if err := os.WriteFile(filepath.Join(dir, "RTAComplete.txt"), nil, 0o644); err != nil {
		t.Fatalf("write signal: %v", err)
	}
	f.svc.Cycle()
	if len(f.starter.specs) != 1 {
		t.Fatalf("launched %d jobs after signal appeared, want 1", len(f.starter.specs))
	}
}

func TestReapRecordsOutcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")
	f.addRun(t, "run_b")

	f.svc.Cycle()
	if len(f.starter.procs) != 2 {
		t.Fatalf("launched %d jobs, want 2", len(f.starter.procs))
	}

	f.starter.procs[0].exit(0)
	f.starter.procs[1].exit(2)
	f.svc.reap()

	if st := f.state(t, "run_a"); st != rundir.Completed {
		t.Fatalf("run_a state = %s, want completed", st)
	}
	if st := f.state(t, "run_b"); st != rundir.Failed {
		t.Fatalf("run_b state = %s, want failed", st)
	}
	if n := f.svc.ActiveCount(); n != 0 {
		t.Fatalf("active count after reap = %d, want 0", n)
	}

	// Terminal states are never revisited.
	f.svc.Cycle()
	if len(f.starter.specs) != 2 {
		t.Fatalf("terminal run relaunched: %d launches total", len(f.starter.specs))
	}
}

func TestFreedSlotReusedSameCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) {
		c.MaxConcurrent = 1
		c.ReadySignal = "RTAComplete.txt"
	})
	f.addRun(t, "run_a", "RTAComplete.txt")
	f.addRun(t, "run_b") // signal still absent

	// Cycle 1: run_a takes the only slot, run_b is not ready anyway.
	f.svc.Cycle()
	if len(f.starter.specs) != 1 || f.state(t, "run_a") != rundir.Processing {
		t.Fatalf("cycle 1: launches=%d run_a=%s", len(f.starter.specs), f.state(t, "run_a"))
	}

	// run_a's process exits 0 before cycle 2.
	f.starter.procs[0].exit(0)

	// Cycle 2: reap precedes scanning, the slot frees, run_b still lacks
	// its signal so nothing launches.
	f.svc.reap()
	f.svc.Cycle()
	if st := f.state(t, "run_a"); st != rundir.Completed {
		t.Fatalf("run_a state = %s, want completed", st)
	}
	if len(f.starter.specs) != 1 {
		t.Fatalf("cycle 2 launched %d extra jobs, want 0", len(f.starter.specs)-1)
	}

	// Once the signal lands, the freed slot goes to run_b.
	if err := os.WriteFile(filepath.Join(f.watch, "run_b", "RTAComplete.txt"), nil, 0o644); err != nil {
		t.Fatalf("write signal: %v", err)
	}
	f.svc.reap()
	f.svc.Cycle()
	if st := f.state(t, "run_b"); st != rundir.Processing {
		t.Fatalf("run_b state = %s, want processing", st)
	}
}

func TestSpawnFailureMarksFailedNoRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")
	f.starter.err = errors.New("exec: no such file or directory")

	f.svc.Cycle()
	if st := f.state(t, "run_a"); st != rundir.Failed {
		t.Fatalf("run_a state = %s, want failed", st)
	}
	if n := f.svc.ActiveCount(); n != 0 {
		t.Fatalf("active count = %d, want 0", n)
	}

	// Failed is terminal: even with a working starter there is no retry.
	f.starter.err = nil
	f.svc.Cycle()
	if len(f.starter.specs) != 0 {
		t.Fatalf("failed run was retried: %d launches", len(f.starter.specs))
	}
}

func TestOutputDirFailureLeavesPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")

	// Occupy the output base path with a file so MkdirAll fails.
	if err := os.WriteFile(f.output, nil, 0o644); err != nil {
		t.Fatalf("write blocking file: %v", err)
	}

	f.svc.Cycle()
	if st := f.state(t, "run_a"); st != rundir.Pending {
		t.Fatalf("run_a state = %s, want pending (no marker before the output dir exists)", st)
	}
	if len(f.starter.specs) != 0 {
		t.Fatalf("launched %d jobs, want 0", len(f.starter.specs))
	}

	// Unblock: the run is retried on a later cycle.
	if err := os.Remove(f.output); err != nil {
		t.Fatalf("remove blocking file: %v", err)
	}
	f.svc.Cycle()
	if st := f.state(t, "run_a"); st != rundir.Processing {
		t.Fatalf("run_a state after retry = %s, want processing", st)
	}
}

func TestUntrackedProcessingRunIsLeftAlone(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	dir := f.addRun(t, "run_a")

	// A marker left behind by a previous scheduler incarnation.
	if err := os.WriteFile(filepath.Join(dir, ".processing"), nil, 0o644); err != nil {
		t.Fatalf("write stale marker: %v", err)
	}

	for i := 0; i < 3; i++ {
		f.svc.Cycle()
	}
	if len(f.starter.specs) != 0 {
		t.Fatalf("launched %d jobs for an untracked processing run, want 0", len(f.starter.specs))
	}
	if st := f.state(t, "run_a"); st != rundir.Processing {
		t.Fatalf("run_a state = %s, want processing (untouched)", st)
	}
	if !f.svc.orphanWarned["run_a"] {
		t.Fatal("untracked processing run was not flagged for the operator")
	}
}

func TestLaunchThrottleStopsCycleCleanly(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) {
		c.MaxConcurrent = 10
		c.LaunchRatePerSec = 1
	})
	f.addRun(t, "run_a")
	f.addRun(t, "run_b")
	f.addRun(t, "run_c")

	f.svc.Cycle()

	// Burst of 1: exactly one launch, the rest deferred without markers.
	if len(f.starter.specs) != 1 {
		t.Fatalf("launched %d jobs, want 1", len(f.starter.specs))
	}
	if st := f.state(t, "run_b"); st != rundir.Pending {
		t.Fatalf("run_b state = %s, want pending", st)
	}
	if st := f.state(t, "run_c"); st != rundir.Pending {
		t.Fatalf("run_c state = %s, want pending", st)
	}
}

func TestRunDrainsOnCancelWithoutLaunching(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.addRun(t, "run_a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.svc.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil on drain", err)
	}
	if len(f.starter.specs) != 0 {
		t.Fatalf("draining scheduler launched %d jobs, want 0", len(f.starter.specs))
	}
	if st := f.state(t, "run_a"); st != rundir.Pending {
		t.Fatalf("run_a state = %s, want pending", st)
	}
}

func TestRunLeavesActiveJobUntouchedOnDrain(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.Interval = 10 * time.Millisecond })
	f.addRun(t, "run_a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	// Wait until the job is visibly launched, then request shutdown.
	deadline := time.Now().Add(5 * time.Second)
	for f.state(t, "run_a") != rundir.Processing {
		if time.Now().After(deadline) {
			t.Fatal("run_a never launched")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain after cancel")
	}

	// The job never exited; drain must not have touched its marker.
	if st := f.state(t, "run_a"); st != rundir.Processing {
		t.Fatalf("run_a state after drain = %s, want processing", st)
	}
}

func TestMarkerWriteFailureRetriesNextReap(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	dir := f.addRun(t, "run_a")

	f.svc.Cycle()
	if len(f.starter.procs) != 1 {
		t.Fatalf("launched %d jobs, want 1", len(f.starter.procs))
	}
	f.starter.procs[0].exit(0)

	// Occupy the terminal marker's path with a directory so the write fails.
	blocker := filepath.Join(dir, ".completed")
	if err := os.Mkdir(blocker, 0o755); err != nil {
		t.Fatalf("mkdir blocker: %v", err)
	}

	f.svc.reap()
	if n := f.svc.ActiveCount(); n != 1 {
		t.Fatalf("job dropped despite unrecorded outcome, active = %d", n)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatalf("remove blocker: %v", err)
	}
	f.svc.reap()
	if st := f.state(t, "run_a"); st != rundir.Completed {
		t.Fatalf("run_a state = %s, want completed after retry", st)
	}
	if n := f.svc.ActiveCount(); n != 0 {
		t.Fatalf("active count = %d, want 0", n)
	}
}
