package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hackreg/internal/account"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// timingPad is compared against the supplied password when the email does not
// resolve to an account, so unknown emails cost the same as wrong passwords.
var timingPad, _ = bcrypt.GenerateFromPassword([]byte("hackreg.timing.pad"), bcryptCost)

// Service orchestrates credentials, lockout and token issuance over the
// account store.
type Service struct {
	store   account.Store
	issuer  *Issuer
	lockout account.LockoutPolicy
	now     func() time.Time
}

func NewService(store account.Store, issuer *Issuer) *Service {
	return &Service{
		store:   store,
		issuer:  issuer,
		lockout: account.DefaultLockoutPolicy(),
		now:     time.Now,
	}
}

func (s *Service) WithLockoutPolicy(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.lockout.MaxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockout.LockDuration = lockDuration
	}
}

// Session is what a successful login or refresh hands back.
type Session struct {
	Tokens   TokenPair
	Identity Identity
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(timingPad, []byte(password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("find account: %w", err)
	}

	// A still-active lock rejects the attempt before the password is even
	// looked at; an elapsed lock lifts implicitly.
	if acct.LockedAt(now) {
		return Session{}, &LockedError{Until: acct.LockedUntil.UTC()}
	}

	if !VerifyPassword(password, acct.PasswordHash) {
		lockedUntil, regErr := s.store.RegisterFailure(ctx, acct.ID, s.lockout, now)
		if regErr != nil {
			return Session{}, fmt.Errorf("record failed attempt: %w", regErr)
		}
		if lockedUntil != nil {
			return Session{}, &LockedError{Until: lockedUntil.UTC()}
		}
		return Session{}, ErrInvalidCredentials
	}

	acct, err = s.store.ResetOnSuccess(ctx, acct.ID, now)
	if err != nil {
		return Session{}, fmt.Errorf("reset lockout state: %w", err)
	}

	return s.newSession(acct)
}

// Refresh re-reads the account so a role change since issuance takes effect
// within one refresh cycle.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	accountID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return Session{}, err
	}

	acct, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, fmt.Errorf("reload account: %w", err)
	}

	return s.newSession(acct)
}

func (s *Service) newSession(acct account.Account) (Session, error) {
	tokens, err := s.issuer.Issue(acct)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	return Session{
		Tokens:   tokens,
		Identity: Identity{ID: acct.ID, Email: acct.Email, Role: acct.Role},
	}, nil
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register is the self-service path; the role is always participant.
// Elevated roles only exist through CreateAccount behind the admin guard.
func (s *Service) Register(ctx context.Context, input RegisterInput) (account.Account, error) {
	return s.create(ctx, input.Name, input.Email, input.Password, account.RoleParticipant)
}

type CreateAccountInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (account.Account, error) {
	role, err := account.ParseRole(input.Role)
	if err != nil || role == account.RoleParticipant {
		return account.Account{}, &ValidationError{Field: "role", Reason: "must be admin, coordinator or evaluator"}
	}

	return s.create(ctx, input.Name, input.Email, input.Password, role)
}

func (s *Service) create(ctx context.Context, name, email, password string, role account.Role) (account.Account, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return account.Account{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	if !emailRegex.MatchString(email) {
		return account.Account{}, &ValidationError{Field: "email", Reason: "format is invalid"}
	}
	if err := ValidatePassword(password); err != nil {
		return account.Account{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return account.Account{}, err
	}

	created, err := s.store.Create(ctx, account.NewAccount{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			// Same shape as any other validation failure; the response must
			// not confirm that the email has an account.
			return account.Account{}, &ValidationError{Field: "email", Reason: "cannot be used"}
		}
		return account.Account{}, fmt.Errorf("create account: %w", err)
	}

	return created, nil
}

// EnsureAdmin seeds the first admin account from the environment. A no-op
// when the email already has an account.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("admin email and password are required together")
	}

	_, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("look up admin account: %w", err)
	}

	_, err = s.create(ctx, "Administrator", email, password, account.RoleAdmin)
	return err
}
