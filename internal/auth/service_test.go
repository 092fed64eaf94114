package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hackreg/internal/account"
)

func quickHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestService(t *testing.T) (*Service, *account.Memory) {
	t.Helper()
	store := account.NewMemory()
	return NewService(store, newTestIssuer()), store
}

func seedAccount(t *testing.T, store *account.Memory, email, password string, role account.Role) account.Account {
	t.Helper()
	acct, err := store.Create(context.Background(), account.NewAccount{
		Name:         "Test Account",
		Email:        email,
		PasswordHash: quickHash(t, password),
		Role:         role,
	})
	require.NoError(t, err)
	return acct
}

func TestService_LoginSuccess(t *testing.T) {
	service, store := newTestService(t)
	acct := seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleParticipant)

	session, err := service.Login(context.Background(), "Dana@Example.com", "Sup3rSecret!")
	require.NoError(t, err)

	assert.Equal(t, acct.ID, session.Identity.ID)
	assert.Equal(t, "dana@example.com", session.Identity.Email)
	assert.Equal(t, account.RoleParticipant, session.Identity.Role)
	assert.NotEmpty(t, session.Tokens.Access)
	assert.NotEmpty(t, session.Tokens.Refresh)

	stored, err := store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLogins)
	assert.Nil(t, stored.LockedUntil)
	require.NotNil(t, stored.LastLoginAt)
}

func TestService_LoginUnknownEmailIsGeneric(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_LoginWrongPasswordCountsFailures(t *testing.T) {
	service, store := newTestService(t)
	acct := seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleParticipant)

	for i := 0; i < 4; i++ {
		_, err := service.Login(context.Background(), "dana@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	stored, err := store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.FailedLogins)
	assert.Nil(t, stored.LockedUntil)
}

func TestService_LockoutScenario(t *testing.T) {
	service, store := newTestService(t)
	acct := seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleParticipant)

	// Five consecutive wrong passwords trip the lock on the fifth.
	for i := 0; i < 4; i++ {
		_, err := service.Login(context.Background(), "dana@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := service.Login(context.Background(), "dana@example.com", "wrong-password")
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), locked.Until, 5*time.Second)

	// Counter resets when the lock is set.
	stored, err := store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLogins)
	require.NotNil(t, stored.LockedUntil)

	// The correct password inside the lock window is still rejected.
	_, err = service.Login(context.Background(), "dana@example.com", "Sup3rSecret!")
	require.ErrorAs(t, err, &locked)
	assert.Positive(t, locked.RetryAfter(time.Now().UTC()))

	// Once the window elapses the lock lifts implicitly and the correct
	// password clears the state.
	expired := time.Now().UTC().Add(-time.Minute)
	stored.LockedUntil = &expired
	store.Put(stored)

	session, err := service.Login(context.Background(), "dana@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, session.Identity.ID)

	stored, err = store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LockedUntil)
	assert.Zero(t, stored.FailedLogins)
}

func TestService_WrongPasswordDuringExpiredLockProceedsAsOpen(t *testing.T) {
	service, store := newTestService(t)
	acct := seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleParticipant)

	expired := time.Now().UTC().Add(-time.Minute)
	stored, err := store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	stored.LockedUntil = &expired
	store.Put(stored)

	_, err = service.Login(context.Background(), "dana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	stored, err = store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLogins)
}

func TestService_LoginStoreFailurePropagates(t *testing.T) {
	issuer := newTestIssuer()
	service := NewService(failingStore{}, issuer)

	_, err := service.Login(context.Background(), "dana@example.com", "Sup3rSecret!")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RefreshRederivesRole(t *testing.T) {
	service, store := newTestService(t)
	acct := seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleCoordinator)

	session, err := service.Login(context.Background(), "dana@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	// Demote between issuance and refresh; the refreshed identity must carry
	// the current role, not the one embedded at login time.
	stored, err := store.FindByID(context.Background(), acct.ID)
	require.NoError(t, err)
	stored.Role = account.RoleParticipant
	store.Put(stored)

	refreshed, err := service.Refresh(context.Background(), session.Tokens.Refresh)
	require.NoError(t, err)
	assert.Equal(t, account.RoleParticipant, refreshed.Identity.Role)
}

func TestService_RefreshRejectsAccessToken(t *testing.T) {
	service, store := newTestService(t)
	seedAccount(t, store, "dana@example.com", "Sup3rSecret!", account.RoleParticipant)

	session, err := service.Login(context.Background(), "dana@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	_, err = service.Refresh(context.Background(), session.Tokens.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestService_RefreshMissingAccountDenies(t *testing.T) {
	service, _ := newTestService(t)

	pair, err := service.issuer.Issue(testAccount())
	require.NoError(t, err)

	_, err = service.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestService_RegisterDefaultsToParticipant(t *testing.T) {
	service, _ := newTestService(t)

	created, err := service.Register(context.Background(), RegisterInput{
		Name:     "Dana",
		Email:    "Dana@Example.com",
		Password: "Sup3rSecret!",
	})
	require.NoError(t, err)

	assert.Equal(t, account.RoleParticipant, created.Role)
	assert.Equal(t, "dana@example.com", created.Email)
	assert.NotEqual(t, "Sup3rSecret!", created.PasswordHash)
	assert.True(t, VerifyPassword("Sup3rSecret!", created.PasswordHash))
}

func TestService_RegisterValidation(t *testing.T) {
	service, store := newTestService(t)
	seedAccount(t, store, "taken@example.com", "Sup3rSecret!", account.RoleParticipant)

	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"missing name", RegisterInput{Email: "a@b.com", Password: "Sup3rSecret!"}, "name"},
		{"bad email", RegisterInput{Name: "Dana", Email: "not-an-email", Password: "Sup3rSecret!"}, "email"},
		{"weak password", RegisterInput{Name: "Dana", Email: "a@b.com", Password: "short"}, "password"},
		{"duplicate email", RegisterInput{Name: "Dana", Email: "taken@example.com", Password: "Sup3rSecret!"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), tt.input)
			var invalid *ValidationError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestService_RegisterDuplicateIsIndistinguishable(t *testing.T) {
	service, store := newTestService(t)
	seedAccount(t, store, "taken@example.com", "Sup3rSecret!", account.RoleParticipant)

	_, dupErr := service.Register(context.Background(), RegisterInput{
		Name: "Dana", Email: "taken@example.com", Password: "Sup3rSecret!",
	})
	require.Error(t, dupErr)

	// The duplicate answer must not read differently from an ordinary
	// rejected email, or it confirms the account exists.
	var invalid *ValidationError
	require.ErrorAs(t, dupErr, &invalid)
	assert.NotContains(t, invalid.Reason, "registered")
	assert.NotContains(t, invalid.Reason, "exists")
}

func TestService_CreateAccountRoles(t *testing.T) {
	service, _ := newTestService(t)

	created, err := service.CreateAccount(context.Background(), CreateAccountInput{
		Name: "Eve", Email: "eve@example.com", Password: "Sup3rSecret!", Role: "evaluator",
	})
	require.NoError(t, err)
	assert.Equal(t, account.RoleEvaluator, created.Role)

	for _, role := range []string{"participant", "superuser", ""} {
		_, err := service.CreateAccount(context.Background(), CreateAccountInput{
			Name: "Eve", Email: "eve2@example.com", Password: "Sup3rSecret!", Role: role,
		})
		var invalid *ValidationError
		require.ErrorAs(t, err, &invalid, role)
		assert.Equal(t, "role", invalid.Field)
	}
}

func TestService_EnsureAdmin(t *testing.T) {
	service, store := newTestService(t)

	require.NoError(t, service.EnsureAdmin(context.Background(), "", ""))

	require.Error(t, service.EnsureAdmin(context.Background(), "root@example.com", ""))

	require.NoError(t, service.EnsureAdmin(context.Background(), "root@example.com", "Sup3rSecret!"))
	created, err := store.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.RoleAdmin, created.Role)

	// Idempotent: an existing account is left alone.
	require.NoError(t, service.EnsureAdmin(context.Background(), "root@example.com", "Different1!"))
	again, err := store.FindByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.PasswordHash, again.PasswordHash)
}

// failingStore simulates an unreachable account store.
type failingStore struct{}

var errStoreDown = errors.New("store unreachable")

func (failingStore) FindByEmail(context.Context, string) (account.Account, error) {
	return account.Account{}, errStoreDown
}

func (failingStore) FindByID(context.Context, string) (account.Account, error) {
	return account.Account{}, errStoreDown
}

func (failingStore) Create(context.Context, account.NewAccount) (account.Account, error) {
	return account.Account{}, errStoreDown
}

func (failingStore) RegisterFailure(context.Context, string, account.LockoutPolicy, time.Time) (*time.Time, error) {
	return nil, errStoreDown
}

func (failingStore) ResetOnSuccess(context.Context, string, time.Time) (account.Account, error) {
	return account.Account{}, errStoreDown
}

func (failingStore) ClearExpiredLocks(context.Context, time.Time, int) (int64, error) {
	return 0, errStoreDown
}
