package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	texts []string
	to    []kit.ChatTarget
	calls int
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.texts = append(f.texts, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		QueueSize:     8,
		RatePerSec:    100,
		RetryMax:      3,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		Target:        kit.ChatTarget{ChatID: 42, ThreadID: 7},
	}
}

func TestDeliversInOrderAndKeepsHistory(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	s := New(testConfig(), fs, logx.Nop(), nil)
	s.Start(context.Background())

	s.Notify(context.Background(), "BAN", "Request count: 3")
	s.Notify(context.Background(), "DATES_AVAILABLE", "2025-10-15 <soon>")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	got := fs.sent()
	if len(got) != 2 {
		t.Fatalf("sent %d messages, want 2", len(got))
	}
	if got[0] != "<b>BAN</b>\nRequest count: 3" {
		t.Fatalf("first message = %q", got[0])
	}
	if !strings.Contains(got[1], "2025-10-15 &lt;soon&gt;") {
		t.Fatalf("body not escaped: %q", got[1])
	}
	if fs.to[0] != (kit.ChatTarget{ChatID: 42, ThreadID: 7}) {
		t.Fatalf("target = %+v", fs.to[0])
	}
	h := s.History()
	if len(h) != 2 || h[0].Title != "BAN" || h[1].Title != "DATES_AVAILABLE" {
		t.Fatalf("history = %+v", h)
	}
}

func TestRetriesTransientSendErrors(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(testConfig(), fs, logx.Nop(), bus)
	s.Start(context.Background())
	s.Notify(context.Background(), "SUCCESS", "Rescheduled Successfully! 2025-10-15 10:30")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if fs.calls != 3 || len(fs.sent()) != 1 {
		t.Fatalf("calls=%d sent=%d, want 3 calls and 1 delivery", fs.calls, len(fs.sent()))
	}
	select {
	case e := <-events:
		if e.Type != EventSent {
			t.Fatalf("event = %s, want %s", e.Type, EventSent)
		}
	default:
		t.Fatal("missing sent event")
	}
}

func TestGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{fails: 100}
	cfg := testConfig()
	cfg.RetryMax = 1
	s := New(cfg, fs, logx.Nop(), nil)
	s.Start(context.Background())
	s.Notify(context.Background(), "FAIL", "x")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if fs.calls != 2 {
		t.Fatalf("calls = %d, want 2", fs.calls)
	}
	if len(s.History()) != 0 {
		t.Fatal("failed message must not enter history")
	}
}

func TestDisabledAndStoppedRejectQuietly(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Enabled = false
	fs := &fakeSender{}
	s := New(cfg, fs, logx.Nop(), nil)
	s.Start(context.Background())

	if err := s.enqueue(context.Background(), "BAN", "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("enqueue while disabled = %v, want ErrDisabled", err)
	}

	cfg.Enabled = true
	s.Apply(cfg)
	if !s.Enabled() {
		t.Fatal("Apply should re-enable delivery")
	}
	if err := s.enqueue(context.Background(), "BAN", "x"); err != nil {
		t.Fatalf("enqueue after Apply: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if err := s.enqueue(context.Background(), "BAN", "y"); !errors.Is(err, ErrStopped) {
		t.Fatalf("enqueue after Stop = %v, want ErrStopped", err)
	}
	if len(fs.sent()) != 1 {
		t.Fatalf("sent = %v", fs.sent())
	}
}

func TestNilSenderIsDisabled(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), nil, logx.Nop(), nil)
	s.Start(context.Background())
	if s.Enabled() {
		t.Fatal("service without sender reports enabled")
	}
	s.Notify(context.Background(), "BAN", "x")
	s.Stop(context.Background())
}

func TestQueueFullDrops(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	bs := &blockingSender{release: block, started: make(chan struct{})}
	cfg := testConfig()
	cfg.QueueSize = 1
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(cfg, bs, logx.Nop(), bus)
	s.Start(context.Background())

	// First message is picked up by the worker and blocks; the next fills the queue.
	s.Notify(context.Background(), "a", "")
	<-bs.started
	s.Notify(context.Background(), "b", "")
	if err := s.enqueue(context.Background(), "c", ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue = %v, want ErrQueueFull", err)
	}
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	dropped := 0
	for len(events) > 0 {
		if e := <-events; e.Type == EventDropped {
			dropped++
		}
	}
	if dropped != 1 {
		t.Fatalf("dropped events = %d, want 1", dropped)
	}
}

type blockingSender struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingSender) SendText(ctx context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return kit.MessageRef{}, ctx.Err()
	}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}
