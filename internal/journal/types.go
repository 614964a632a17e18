package journal

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one run state transition.
// Keep it compact and schema-stable.
type Entry struct {
	At       time.Time `json:"at"`
	JobID    string    `json:"job_id,omitempty"`
	Run      string    `json:"run"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	ExitCode int       `json:"exit_code"`
	Detail   string    `json:"detail,omitempty"`
}

// Summary aggregates transitions over a window, for the activity report.
type Summary struct {
	Since     time.Time
	Launched  int
	Completed int
	Failed    int
}

// Store is the persistence API consumed by the journal pump and the
// activity report.
type Store interface {
	AppendTransition(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Summarize(ctx context.Context, since time.Time) (Summary, error)
	Close() error
}
