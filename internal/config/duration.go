package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a duration that accepts either a Go duration string ("45s",
// "2m") or a bare number meaning seconds (60). The numeric form exists for
// compatibility with older flat configs where the poll period was an
// integer of seconds.
type Interval time.Duration

func (iv Interval) Duration() time.Duration { return time.Duration(iv) }

func (iv Interval) String() string { return time.Duration(iv).String() }

func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(iv).String())
}

func (iv *Interval) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*iv = 0
		return nil
	}

	if s[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*iv = 0
			return nil
		}
		// Bare digits inside a quoted string also mean seconds.
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			*iv = Interval(time.Duration(secs * float64(time.Second)))
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", raw, err)
		}
		*iv = Interval(d)
		return nil
	}

	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid interval %s: %w", s, err)
	}
	*iv = Interval(time.Duration(secs * float64(time.Second)))
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
