// Package gateway defines the capability the poller needs from the booking
// service: authenticate once, then issue authenticated reads and one write.
//
// How a session is obtained (browser automation, direct HTTP) is an
// implementation detail; see package ais for the HTTP client.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

var (
	// ErrAuth means the login flow did not yield a usable session.
	ErrAuth = errors.New("authentication failed")
	// ErrSessionExpired means the service no longer accepts the session.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnexpectedResponse means the service answered with something we cannot parse.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Session is an opaque authenticated session handle.
// It is owned by a single caller and must not be shared.
type Session interface {
	ID() string
}

// Gateway is the booking service as seen by the poller.
type Gateway interface {
	Authenticate(ctx context.Context) (Session, error)
	// FetchCurrentAppointment returns ok=false when nothing is booked.
	FetchCurrentAppointment(ctx context.Context, s Session) (date civil.Date, ok bool, err error)
	// FetchAvailableDates returns dates in provider order. An empty result is
	// meaningful (throttling or no availability) and is not an error.
	FetchAvailableDates(ctx context.Context, s Session) ([]civil.Date, error)
	// FetchAvailableTimes returns "HH:MM" slots for d in provider order.
	FetchAvailableTimes(ctx context.Context, s Session, d civil.Date) ([]string, error)
	// SubmitReschedule returns the raw response body of the submission.
	SubmitReschedule(ctx context.Context, s Session, d civil.Date, tod string) (string, error)
	// SignOut is best-effort.
	SignOut(ctx context.Context, s Session) error
}

// AuthError wraps the cause of a failed login so callers can still errors.Is(err, ErrAuth).
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrAuth, e.Step)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAuth, e.Step, e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}
