package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// Store is the append-only audit record.
type Store interface {
	// AppendLog records text under day (YYYY-MM-DD) at the current time.
	AppendLog(ctx context.Context, day, text string) error
	// ReadDay returns the entries of day in write order.
	ReadDay(ctx context.Context, day string) ([]Entry, error)
	Close() error
}

// Open initializes the configured store. Driver "none" (or empty) yields a
// store that discards everything.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "none":
		return Discard{}, nil
	case "file":
		return openFile(cfg, log, time.Now)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log, time.Now)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}

// Discard is the "none" driver.
type Discard struct{}

func (Discard) AppendLog(context.Context, string, string) error { return nil }

func (Discard) ReadDay(context.Context, string) ([]Entry, error) { return nil, ErrDisabled }

func (Discard) Close() error { return nil }
