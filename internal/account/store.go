package account

import (
	"context"
	"time"
)

// LockoutPolicy controls when repeated failed logins lock an account.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  5,
		LockDuration: 30 * time.Minute,
	}
}

// Store is the account source of truth. Lockout state lives here, not in
// process memory, so the counters stay correct across service instances.
//
// RegisterFailure performs the entire failed-attempt transition as one atomic
// step: increment the counter, and when it reaches the policy threshold set
// locked_until and reset the counter to zero. Two concurrent failures must
// never both observe the pre-increment counter. While a lock is active the
// call leaves the row untouched and reports the existing deadline.
type Store interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, input NewAccount) (Account, error)
	RegisterFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (*time.Time, error)
	ResetOnSuccess(ctx context.Context, id string, now time.Time) (Account, error)
	ClearExpiredLocks(ctx context.Context, now time.Time, batchSize int) (int64, error)
}
