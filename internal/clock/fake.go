package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manual clock. Sleep returns immediately after advancing Now by d
// and recording the requested duration.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep, when set, runs after each recorded sleep (outside the lock).
	// Tests use it to cancel the run context after N sleeps.
	OnSleep func(n int, d time.Duration)
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	n := len(f.sleeps)
	hook := f.OnSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Sleeps returns a copy of every duration passed to Sleep.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
