package clock

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestBackoffStaysInRange(t *testing.T) {
	t.Parallel()
	lower, upper := 60*time.Second, 90*time.Second
	b, err := NewBackoff(lower, upper, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewBackoff: %v", err)
	}
	seen := map[time.Duration]bool{}
	for i := 0; i < 2000; i++ {
		d := b.Next()
		if d < lower || d > upper {
			t.Fatalf("Next() = %s, want within [%s, %s]", d, lower, upper)
		}
		seen[d] = true
	}
	if len(seen) < 100 {
		t.Fatalf("expected varied intervals, got %d distinct values", len(seen))
	}
}

func TestBackoffDegenerateRange(t *testing.T) {
	t.Parallel()
	b, err := NewBackoff(5*time.Second, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewBackoff: %v", err)
	}
	if got := b.Next(); got != 5*time.Second {
		t.Fatalf("Next() = %s, want 5s", got)
	}
}

func TestBackoffRejectsInvertedRange(t *testing.T) {
	t.Parallel()
	if _, err := NewBackoff(10*time.Second, time.Second, nil); err == nil {
		t.Fatal("expected error for upper < lower")
	}
	if _, err := NewBackoff(-time.Second, time.Second, nil); err == nil {
		t.Fatal("expected error for negative lower bound")
	}
}

func TestRealSleepHonorsCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := (Real{}).Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Sleep did not return promptly on cancelled context")
	}
}

func TestFakeRecordsSleeps(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	_ = f.Sleep(context.Background(), time.Minute)
	_ = f.Sleep(context.Background(), time.Hour)
	if got := f.Now(); !got.Equal(start.Add(time.Hour + time.Minute)) {
		t.Fatalf("Now() = %v", got)
	}
	if s := f.Sleeps(); len(s) != 2 || s[0] != time.Minute || s[1] != time.Hour {
		t.Fatalf("Sleeps() = %v", s)
	}
}
