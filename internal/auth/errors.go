package auth

import (
	"errors"
	"time"
)

// Every verification failure resolves to one of these. Anything undecidable
// (store down, unknown role, parse failure) denies access; no path fails open.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")

	// ErrTokenExpired marks a structurally valid, correctly signed token whose
	// lifetime has passed. It is the only failure that may trigger a refresh.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed covers bad structure, bad signature, wrong signing
	// algorithm and unknown claims values. Never recoverable.
	ErrTokenMalformed = errors.New("token malformed")
)

// LockedError rejects login attempts while an account lock is active.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account temporarily locked"
}

// RetryAfter is the remaining lock window, floored at one second so the
// Retry-After header never goes to zero while the lock still holds.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	remaining := e.Until.Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

// ValidationError reports the first rejected field of a registration or
// account-creation request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
