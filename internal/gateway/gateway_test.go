package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestAuthErrorUnwrap(t *testing.T) {
	t.Parallel()
	cause := context.DeadlineExceeded
	err := error(&AuthError{Step: "sign in", Err: cause})
	if !errors.Is(err, ErrAuth) {
		t.Fatal("AuthError should match ErrAuth")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("AuthError should match its cause")
	}
	if errors.Is(&AuthError{Step: "csrf"}, context.Canceled) {
		t.Fatal("AuthError without cause matched an unrelated error")
	}
	if got := (&AuthError{Step: "csrf"}).Error(); got != "authentication failed: csrf" {
		t.Fatalf("Error() = %q", got)
	}
}
