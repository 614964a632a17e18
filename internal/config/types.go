package config

// Default marker filenames. A run directory carries at most one of these;
// its presence (by name) is the run's processing state.
const (
	DefaultProcessingMarker = ".processing"
	DefaultCompletedMarker  = ".completed"
	DefaultFailedMarker     = ".failed"
)

type Config struct {
	Watcher WatcherConfig `json:"watcher"`
	Job     JobConfig     `json:"job"`

	// Markers overrides the marker filenames. If the whole block is omitted,
	// the defaults above apply.
	Markers MarkersConfig `json:"markers,omitempty"`

	Logging LoggingConfig `json:"logging"`

	// Journal enables the optional transition journal.
	Journal *JournalConfig `json:"journal,omitempty"`

	// Report enables the optional scheduled activity summary.
	// Requires Journal.
	Report *ReportConfig `json:"report,omitempty"`
}

// WatcherConfig controls run detection.
type WatcherConfig struct {
	// WatchDirectory is the root under which run directories appear.
	WatchDirectory string `json:"watch_directory"`

	// ReadySignalFile names a file inside a run directory whose presence
	// means the run is complete and safe to process. Empty means every
	// discovered run is immediately ready.
	ReadySignalFile string `json:"ready_signal_file,omitempty"`

	// CheckInterval is the poll period. Accepts a Go duration string
	// ("30s", "2m") or a bare number meaning seconds.
	CheckInterval Interval `json:"check_interval"`

	// WatchEvents enables the fs-event nudge that shortens the poll sleep
	// when new entries appear under the watch directory. Detection never
	// depends on it. Defaults to true.
	WatchEvents *bool `json:"watch_events,omitempty"`
}

// JobConfig controls how processing commands are launched.
type JobConfig struct {
	Executable string `json:"executable"`

	// Arguments is a whitespace-separated template. Recognized placeholders:
	// {input_dir}, {output_dir}, {config_path}.
	Arguments string `json:"arguments"`

	// ConfigPath is substituted for {config_path}. Required iff the
	// template references that placeholder.
	ConfigPath string `json:"config_path,omitempty"`

	// OutputBaseDirectory is where per-run output directories are created.
	OutputBaseDirectory string `json:"output_base_directory"`

	MaxConcurrentJobs int `json:"max_concurrent_jobs"`

	// LaunchRatePerSec throttles how many jobs may be started per second.
	// 0 means unthrottled.
	LaunchRatePerSec int `json:"launch_rate_per_sec,omitempty"`

	// CaptureOutput redirects the child's stdout/stderr to job.log inside
	// the run's output directory. When false the output is discarded.
	CaptureOutput bool `json:"capture_output,omitempty"`
}

type MarkersConfig struct {
	Processing string `json:"processing,omitempty"`
	Completed  string `json:"completed,omitempty"`
	Failed     string `json:"failed,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// JournalConfig controls the optional persistence layer for run transitions.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "/var/lib/runwatch/journal.db" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReportConfig controls the scheduled activity summary.
type ReportConfig struct {
	// Schedule is a cron expression (5 or 6 fields) or a descriptor
	// like "@daily".
	Schedule string `json:"schedule"`
}

// WatchEventsEnabled resolves the WatchEvents default.
func (w WatcherConfig) WatchEventsEnabled() bool {
	if w.WatchEvents == nil {
		return true
	}
	return *w.WatchEvents
}

// applyDefaults fills omitted optional fields in place.
func (c *Config) applyDefaults() {
	if c.Markers.Processing == "" {
		c.Markers.Processing = DefaultProcessingMarker
	}
	if c.Markers.Completed == "" {
		c.Markers.Completed = DefaultCompletedMarker
	}
	if c.Markers.Failed == "" {
		c.Markers.Failed = DefaultFailedMarker
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
