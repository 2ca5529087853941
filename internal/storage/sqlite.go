//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger, now func() time.Time) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer: the orchestrator
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite audit store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) AppendLog(ctx context.Context, day, text string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := checkDay(day); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(day, at, text) VALUES(?,?,?)`,
		day, s.now().Format(time.RFC3339Nano), text,
	)
	return err
}

func (s *sqliteStore) ReadDay(ctx context.Context, day string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if err := checkDay(day); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT at, text FROM audit_log WHERE day = ? ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var at, text string
		if err := rows.Scan(&at, &text); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("audit_log.at %q: %w", at, err)
		}
		out = append(out, Entry{Day: day, At: t, Text: text})
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
