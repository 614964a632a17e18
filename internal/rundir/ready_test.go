package rundir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadyCheck(t *testing.T) {
	t.Parallel()

	t.Run("no signal configured", func(t *testing.T) {
		t.Parallel()
		run := Run{Name: "r", Dir: t.TempDir()}
		ok, err := ReadyCheck{}.Ready(run)
		if err != nil || !ok {
			t.Fatalf("Ready = (%v, %v), want (true, nil)", ok, err)
		}
	})

	t.Run("signal present", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "RTAComplete.txt"), nil, 0o644); err != nil {
			t.Fatalf("write signal: %v", err)
		}
		ok, err := ReadyCheck{Signal: "RTAComplete.txt"}.Ready(Run{Name: "r", Dir: dir})
		if err != nil || !ok {
			t.Fatalf("Ready = (%v, %v), want (true, nil)", ok, err)
		}
	})

	t.Run("signal missing", func(t *testing.T) {
		t.Parallel()
		ok, err := ReadyCheck{Signal: "RTAComplete.txt"}.Ready(Run{Name: "r", Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("Ready error: %v", err)
		}
		if ok {
			t.Fatal("Ready = true without the signal file")
		}
	})

	t.Run("signal is a directory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, "RTAComplete.txt"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		ok, err := ReadyCheck{Signal: "RTAComplete.txt"}.Ready(Run{Name: "r", Dir: dir})
		if err != nil {
			t.Fatalf("Ready error: %v", err)
		}
		if ok {
			t.Fatal("Ready = true for a directory signal")
		}
	})
}
