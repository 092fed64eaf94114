package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a mutex-serialized Store for tests and local runs without a
// database. Every mutation happens under one lock, so the lockout transition
// is atomic the same way the Postgres row lock makes it.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]Account
	byEmail  map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
	}
}

func (s *Memory) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return Account{}, ErrNotFound
	}

	return s.accounts[id], nil
}

func (s *Memory) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}

	return a, nil
}

func (s *Memory) Create(_ context.Context, input NewAccount) (Account, error) {
	if _, err := ParseRole(string(input.Role)); err != nil {
		return Account{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	email := normalizeEmail(input.Email)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return Account{}, ErrDuplicateEmail
	}

	a := Account{
		ID:           id.String(),
		Name:         input.Name,
		Email:        email,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	s.byEmail[email] = a.ID

	return a, nil
}

func (s *Memory) RegisterFailure(_ context.Context, id string, policy LockoutPolicy, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}

	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		until := *a.LockedUntil
		return &until, nil
	}

	a.FailedLogins++
	var nextLock *time.Time
	if a.FailedLogins >= policy.MaxAttempts {
		until := now.UTC().Add(policy.LockDuration)
		a.LockedUntil = &until
		a.FailedLogins = 0
		nextLock = &until
	}
	a.UpdatedAt = now.UTC()
	s.accounts[id] = a

	return nextLock, nil
}

func (s *Memory) ResetOnSuccess(_ context.Context, id string, now time.Time) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}

	last := now.UTC()
	a.FailedLogins = 0
	a.LockedUntil = nil
	a.LastLoginAt = &last
	a.UpdatedAt = last
	s.accounts[id] = a

	return a, nil
}

func (s *Memory) ClearExpiredLocks(_ context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for id, a := range s.accounts {
		if cleared >= int64(batchSize) {
			break
		}
		if a.LockedUntil != nil && a.LockedUntil.Before(now) {
			a.LockedUntil = nil
			a.FailedLogins = 0
			a.UpdatedAt = now.UTC()
			s.accounts[id] = a
			cleared++
		}
	}

	return cleared, nil
}

// Put overwrites an account in place. Tests use it to seed lockout states
// that would otherwise require waiting out real time windows.
func (s *Memory) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.ID] = a
	s.byEmail[normalizeEmail(a.Email)] = a.ID
}
