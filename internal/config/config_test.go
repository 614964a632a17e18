package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
watcher:
  watch_directory: /data/runs
  ready_signal_file: RTAComplete.txt
  check_interval: 30s
job:
  executable: /opt/basecall/bin/basecall
  arguments: "-i {input_dir} -o {output_dir} -c {config_path}"
  config_path: /opt/basecall/models/hac.cfg
  output_base_directory: /data/out
  max_concurrent_jobs: 2
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
`

func TestParseValidYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Parse("config.yaml", []byte(validYAML))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Watcher.WatchDirectory != "/data/runs" {
		t.Fatalf("WatchDirectory = %q", cfg.Watcher.WatchDirectory)
	}
	if got := cfg.Watcher.CheckInterval.Duration(); got != 30*time.Second {
		t.Fatalf("CheckInterval = %v, want 30s", got)
	}
	if cfg.Job.MaxConcurrentJobs != 2 {
		t.Fatalf("MaxConcurrentJobs = %d, want 2", cfg.Job.MaxConcurrentJobs)
	}
	if !cfg.Watcher.WatchEventsEnabled() {
		t.Fatal("WatchEventsEnabled() = false for omitted watch_events, want true")
	}
	// Omitted markers block falls back to defaults.
	if cfg.Markers.Processing != DefaultProcessingMarker ||
		cfg.Markers.Completed != DefaultCompletedMarker ||
		cfg.Markers.Failed != DefaultFailedMarker {
		t.Fatalf("marker defaults not applied: %+v", cfg.Markers)
	}
}

func TestParseTOML(t *testing.T) {
	t.Parallel()
	raw := `
[watcher]
watch_directory = "/data/runs"
check_interval = 60

[job]
executable = "/usr/bin/proc"
arguments = "{input_dir} {output_dir}"
output_base_directory = "/data/out"
max_concurrent_jobs = 1

[logging]
level = "debug"
console = true
[logging.file]
enabled = false
path = ""
`
	cfg, err := Parse("config.toml", []byte(raw))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := cfg.Watcher.CheckInterval.Duration(); got != time.Minute {
		t.Fatalf("CheckInterval = %v, want 1m (bare 60 means seconds)", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q", cfg.Logging.Level)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	raw := `{
  "watcher": {"watch_directory": "/r", "check_interval": "1m"},
  "job": {
    "executable": "/bin/x",
    "arguments": "{input_dir}",
    "output_base_directory": "/o",
    "max_concurrent_jobs": 4
  },
  "logging": {"level": "", "console": true, "file": {"enabled": false, "path": ""}}
}`
	cfg, err := Parse("config.json", []byte(raw))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := cfg.Watcher.CheckInterval.Duration(); got != time.Minute {
		t.Fatalf("CheckInterval = %v, want 1m", got)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("Level = %q, want default info", cfg.Logging.Level)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: strings.Replace(validYAML, "ready_signal_file:", "readysignal_file:", 1),
			want: "unknown field",
		},
		{
			name: "missing watch directory",
			yaml: strings.Replace(validYAML, "watch_directory: /data/runs", "watch_directory: \"\"", 1),
			want: "watcher.watch_directory",
		},
		{
			name: "zero interval",
			yaml: strings.Replace(validYAML, "check_interval: 30s", "check_interval: 0", 1),
			want: "watcher.check_interval",
		},
		{
			name: "zero concurrency",
			yaml: strings.Replace(validYAML, "max_concurrent_jobs: 2", "max_concurrent_jobs: 0", 1),
			want: "job.max_concurrent_jobs",
		},
		{
			name: "duplicate marker names",
			yaml: validYAML + "markers:\n  processing: .done\n  completed: .done\n",
			want: "distinct",
		},
		{
			name: "marker with path separator",
			yaml: validYAML + "markers:\n  processing: sub/.processing\n",
			want: "bare filename",
		},
		{
			name: "report without journal",
			yaml: validYAML + "report:\n  schedule: \"0 8 * * *\"\n",
			want: "requires a journal",
		},
		{
			name: "unknown journal driver",
			yaml: validYAML + "journal:\n  driver: redis\n  path: /tmp/x\n",
			want: "journal.driver",
		},
		{
			name: "journal driver without path",
			yaml: validYAML + "journal:\n  driver: file\n",
			want: "journal.path",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("config.yaml", []byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse accepted invalid config, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestIntervalForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "duration string", raw: `"45s"`, want: 45 * time.Second},
		{name: "bare integer seconds", raw: `60`, want: time.Minute},
		{name: "fractional seconds", raw: `0.5`, want: 500 * time.Millisecond},
		{name: "digits in string", raw: `"90"`, want: 90 * time.Second},
		{name: "compound duration", raw: `"1m30s"`, want: 90 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var iv Interval
			if err := iv.UnmarshalJSON([]byte(tt.raw)); err != nil {
				t.Fatalf("UnmarshalJSON(%s) error: %v", tt.raw, err)
			}
			if iv.Duration() != tt.want {
				t.Fatalf("Duration = %v, want %v", iv.Duration(), tt.want)
			}
		})
	}

	var iv Interval
	if err := iv.UnmarshalJSON([]byte(`"soon"`)); err == nil {
		t.Fatal("expected error for non-duration string")
	}
}

func TestJournalEnabled(t *testing.T) {
	t.Parallel()
	var nilJournal *JournalConfig
	if nilJournal.Enabled() {
		t.Fatal("nil journal reported enabled")
	}
	if (&JournalConfig{Driver: "none"}).Enabled() {
		t.Fatal("driver none reported enabled")
	}
	if !(&JournalConfig{Driver: "file", Path: "/tmp/j"}).Enabled() {
		t.Fatal("driver file reported disabled")
	}
}
