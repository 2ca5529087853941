// Package appointment holds the acceptance-window rules that decide whether an
// offered date is an improvement over the appointment currently held.
//
// Everything here is pure: no network, no clock.
package appointment

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

var ErrInvalidWindow = errors.New("invalid appointment window")

// Window is the operator-supplied acceptance range. Both bounds are exclusive
// for candidates: a date d qualifies when Start < d < effective end.
type Window struct {
	Start civil.Date
	End   civil.Date
}

func NewWindow(start, end civil.Date) (Window, error) {
	if !start.IsValid() || !end.IsValid() {
		return Window{}, fmt.Errorf("%w: bounds must be valid dates", ErrInvalidWindow)
	}
	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, start, end)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindow parses two YYYY-MM-DD bounds.
func ParseWindow(start, end string) (Window, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %v", ErrInvalidWindow, err)
	}
	e, err := civil.ParseDate(end)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %v", ErrInvalidWindow, err)
	}
	return NewWindow(s, e)
}

func (w Window) String() string { return fmt.Sprintf("(%s, %s)", w.Start, w.End) }

// EffectiveEnd is min(w.End, held). A zero (invalid) held date means nothing
// is booked and the window end applies.
func EffectiveEnd(w Window, held civil.Date) civil.Date {
	if held.IsValid() && held.Before(w.End) {
		return held
	}
	return w.End
}

// SelectBestDate returns the first candidate, in the order the provider listed
// them, strictly inside (w.Start, EffectiveEnd(w, held)).
// Candidates are not re-sorted.
func SelectBestDate(candidates []civil.Date, w Window, held civil.Date) (civil.Date, bool) {
	end := EffectiveEnd(w, held)
	for _, d := range candidates {
		if w.Start.Before(d) && d.Before(end) {
			return d, true
		}
	}
	return civil.Date{}, false
}

// SameListing reports whether two listings are identical, order included.
func SameListing(a, b []civil.Date) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
