package clock

import (
	"fmt"
	"math/rand"
	"time"
)

// Backoff yields uniformly random intervals in [Lower, Upper]. Every wait
// between availability checks is drawn from here.
type Backoff struct {
	lower, upper time.Duration
	rng          *rand.Rand
}

// NewBackoff validates the bounds. A nil rng gets a time-seeded source.
func NewBackoff(lower, upper time.Duration, rng *rand.Rand) (*Backoff, error) {
	if lower < 0 || upper < lower {
		return nil, fmt.Errorf("invalid backoff range [%s, %s]", lower, upper)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{lower: lower, upper: upper, rng: rng}, nil
}

// Next is not safe for concurrent use; the poller owns its Backoff.
func (b *Backoff) Next() time.Duration {
	span := int64(b.upper - b.lower)
	if span <= 0 {
		return b.lower
	}
	return b.lower + time.Duration(b.rng.Int63n(span+1))
}

func (b *Backoff) Bounds() (time.Duration, time.Duration) { return b.lower, b.upper }
