package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackreg/internal/account"
)

func testAccount() account.Account {
	return account.Account{
		ID:    "0198c9a2-7f7e-7ab3-9367-5a3f8c2d1e04",
		Email: "dana@example.com",
		Role:  account.RoleCoordinator,
	}
}

func newTestIssuer() *Issuer {
	return NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestIssuer_AccessRoundTrip(t *testing.T) {
	issuer := newTestIssuer()
	acct := testAccount()

	pair, err := issuer.Issue(acct)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	identity, err := issuer.VerifyAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, identity.ID)
	assert.Equal(t, acct.Email, identity.Email)
	assert.Equal(t, account.RoleCoordinator, identity.Role)
}

func TestIssuer_RefreshRoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	accountID, err := issuer.VerifyRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, testAccount().ID, accountID)
}

func TestIssuer_ExpiryWindow(t *testing.T) {
	issuer := newTestIssuer()

	issuedAt := time.Now().UTC()
	current := issuedAt
	issuer.now = func() time.Time { return current }

	pair, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	current = issuedAt.Add(14*time.Minute + 59*time.Second)
	_, err = issuer.VerifyAccess(pair.Access)
	assert.NoError(t, err, "access token must still be valid just before expiry")

	current = issuedAt.Add(15*time.Minute + 1*time.Second)
	_, err = issuer.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// The refresh token from the same pair is still good at that point.
	accountID, err := issuer.VerifyRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, testAccount().ID, accountID)

	current = issuedAt.Add(8 * 24 * time.Hour)
	_, err = issuer.VerifyRefresh(pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestIssuer_WrongSecretIsMalformedNotExpired(t *testing.T) {
	issuer := newTestIssuer()
	forger := NewIssuer("other-access-secret", "other-refresh-secret", 15*time.Minute, 7*24*time.Hour)

	pair, err := forger.Issue(testAccount())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
	assert.NotErrorIs(t, err, ErrTokenExpired)

	_, err = issuer.VerifyRefresh(pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestIssuer_SecretsAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	// A refresh token must never pass as an access token and vice versa.
	_, err = issuer.VerifyAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = issuer.VerifyRefresh(pair.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestIssuer_RejectsUnsignedAlgorithm(t *testing.T) {
	issuer := newTestIssuer()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims{
		Email: "dana@example.com",
		Role:  string(account.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testAccount().ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestIssuer_RejectsGarbageAndUnknownRole(t *testing.T) {
	issuer := newTestIssuer()

	for _, garbage := range []string{"", "not-a-token", "a.b.c", "…"} {
		_, err := issuer.VerifyAccess(garbage)
		assert.ErrorIs(t, err, ErrTokenMalformed, garbage)
	}

	// Correct signature, but a role outside the closed set.
	acct := testAccount()
	acct.Role = account.Role("superuser")
	pair, err := issuer.Issue(acct)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestIssuer_RefreshCarriesNoRole(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.Issue(testAccount())
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(pair.Refresh, claims)
	require.NoError(t, err)

	assert.NotContains(t, claims, "role")
	assert.NotContains(t, claims, "email")
	assert.Equal(t, testAccount().ID, claims["sub"])
}
