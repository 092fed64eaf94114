package account

import (
	"errors"
	"fmt"
	"time"
)

// Role is the closed set of roles the platform knows about. Role values read
// from storage or token claims must parse; anything else is rejected.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleEvaluator   Role = "evaluator"
	RoleParticipant Role = "participant"
)

func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleAdmin, RoleCoordinator, RoleEvaluator, RoleParticipant:
		return Role(value), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
}

type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	FailedLogins int
	LockedUntil  *time.Time
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockedAt reports whether the account has an active lock at the given time.
func (a Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

type NewAccount struct {
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUnknownRole    = errors.New("unknown role")
)
