package storage

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrDisabled   = errors.New("storage disabled")
	ErrInvalidDay = errors.New("invalid day key")
)

// Config configures storage.
//
// Driver values:
//   - "file": text files under Path (a directory)
//   - "sqlite": SQLite database file at Path (optional build tag)
//   - "none" or empty: discard
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one audit line.
type Entry struct {
	Day  string // YYYY-MM-DD, the local calendar day the entry belongs to
	At   time.Time
	Text string
}

// DayKey formats t as the key used to bucket entries.
func DayKey(t time.Time) string { return t.Format(time.DateOnly) }

func checkDay(day string) error {
	if _, err := civil.ParseDate(day); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	return nil
}
