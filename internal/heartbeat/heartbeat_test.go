package heartbeat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

type recNotifier struct {
	mu  sync.Mutex
	got []string
}

func (r *recNotifier) Notify(_ context.Context, title, body string) {
	r.mu.Lock()
	r.got = append(r.got, title+"|"+body)
	r.mu.Unlock()
}

type fixedStatus orchestrator.Status

func (f fixedStatus) Status() orchestrator.Status { return orchestrator.Status(f) }

func TestNextMidnightInZone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	h, err := New(Config{Location: loc}, &recNotifier{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2025, 3, 1, 23, 30, 0, 0, loc)
	next := h.Next(now)
	want := time.Date(2025, 3, 2, 0, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("Next = %s, want %s", next, want)
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"", false},
		{"@daily", false},
		{"0 9 * * *", false},
		{"*/5 * * * * *", true},
		{"whenever", true},
	}
	for _, tt := range tests {
		_, err := New(Config{Schedule: tt.spec}, &recNotifier{}, nil, logx.Nop())
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
	}
}

func TestBeatIncludesStatus(t *testing.T) {
	t.Parallel()
	held, _ := civil.ParseDate("2025-11-01")
	n := &recNotifier{}
	h, err := New(Config{}, n, fixedStatus{
		State: orchestrator.StatePolling,
		Held:  held,
		Cycle: orchestrator.WorkCycle{Requests: 12},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Beat(context.Background())
	if len(n.got) != 1 {
		t.Fatalf("notifications = %v", n.got)
	}
	got := n.got[0]
	for _, want := range []string{"NEW_DAY|Its a new day. No news. Still working...", "state: polling", "held: 2025-11-01", "requests this cycle: 12"} {
		if !strings.Contains(got, want) {
			t.Fatalf("beat %q missing %q", got, want)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	h, err := New(Config{Schedule: "@yearly"}, &recNotifier{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Start(context.Background())
	h.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.Stop(ctx)
	h.Stop(ctx)
}
