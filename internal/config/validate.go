package config

import (
	"fmt"
	"strings"
)

// Validate checks structural and range rules. It runs before any component
// is built; a non-nil error aborts startup.
//
// Rules that need domain context (argument-template placeholders, cron
// schedule syntax) are checked where those values are parsed, during
// component construction. Both paths fail startup the same way.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Watcher.WatchDirectory) == "" {
		return fmt.Errorf("watcher.watch_directory: required")
	}
	if c.Watcher.CheckInterval.Duration() <= 0 {
		return fmt.Errorf("watcher.check_interval: must be > 0")
	}

	if strings.TrimSpace(c.Job.Executable) == "" {
		return fmt.Errorf("job.executable: required")
	}
	if strings.TrimSpace(c.Job.Arguments) == "" {
		return fmt.Errorf("job.arguments: required")
	}
	if strings.TrimSpace(c.Job.OutputBaseDirectory) == "" {
		return fmt.Errorf("job.output_base_directory: required")
	}
	if c.Job.MaxConcurrentJobs < 1 {
		return fmt.Errorf("job.max_concurrent_jobs: must be >= 1")
	}
	if c.Job.LaunchRatePerSec < 0 {
		return fmt.Errorf("job.launch_rate_per_sec: must be >= 0")
	}

	if err := validateMarkerName("markers.processing", c.Markers.Processing); err != nil {
		return err
	}
	if err := validateMarkerName("markers.completed", c.Markers.Completed); err != nil {
		return err
	}
	if err := validateMarkerName("markers.failed", c.Markers.Failed); err != nil {
		return err
	}
	if c.Markers.Processing == c.Markers.Completed ||
		c.Markers.Processing == c.Markers.Failed ||
		c.Markers.Completed == c.Markers.Failed {
		return fmt.Errorf("markers: filenames must be distinct")
	}

	if c.Journal != nil {
		driver := strings.ToLower(strings.TrimSpace(c.Journal.Driver))
		switch driver {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(c.Journal.Path) == "" {
				return fmt.Errorf("journal.path: required for driver %q", driver)
			}
		default:
			return fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver)
		}
		if _, err := ParseDurationField("journal.busy_timeout", c.Journal.BusyTimeout); err != nil {
			return err
		}
	}

	if c.Report != nil {
		if strings.TrimSpace(c.Report.Schedule) == "" {
			return fmt.Errorf("report.schedule: required")
		}
		if !c.Journal.Enabled() {
			return fmt.Errorf("report: requires a journal (set journal.driver to file or sqlite)")
		}
	}

	return nil
}

// Enabled reports whether the journal block selects a real driver.
func (j *JournalConfig) Enabled() bool {
	if j == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(j.Driver)) {
	case "", "none":
		return false
	}
	return true
}

func validateMarkerName(key, name string) error {
	if name == "" {
		return fmt.Errorf("%s: must not be empty", key)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%s: %q is not a valid filename", key, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%s: must be a bare filename, got %q", key, name)
	}
	return nil
}
