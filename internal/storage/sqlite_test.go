//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit", "audit.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: 500 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		if err := st.AppendLog(ctx, "2025-05-05", text); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}
	if err := st.AppendLog(ctx, "2025-05-06", "other day"); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	got, err := st.ReadDay(ctx, "2025-05-05")
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Fatalf("entries = %+v", got)
	}
}
