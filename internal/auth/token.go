package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hackreg/internal/account"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Role  account.Role `json:"role"`
}

// TokenPair is issued atomically: both tokens or neither.
type TokenPair struct {
	Access  string
	Refresh string
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the two session tokens. The access token embeds
// the role; the refresh token carries only the account id, so the role is
// re-derived from the store on every refresh. The secrets are independent:
// compromise of one must not allow forging the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) Issue(acct account.Account) (TokenPair, error) {
	now := i.now().UTC()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: acct.Email,
		Role:  string(acct.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
	signedAccess, err := access.SignedString(i.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   acct.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
	})
	signedRefresh, err := refresh.SignedString(i.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{Access: signedAccess, Refresh: signedRefresh}, nil
}

// VerifyAccess distinguishes a cleanly expired token from a malformed one so
// the caller can decide whether a refresh is worth attempting. Signature
// verification happens before expiry, so a tampered-but-expired token always
// reports ErrTokenMalformed.
func (i *Issuer) VerifyAccess(token string) (Identity, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, i.accessKey, i.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenMalformed
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrTokenMalformed
	}

	role, err := account.ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrTokenMalformed
	}

	return Identity{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// VerifyRefresh returns the account id the refresh token was issued for.
func (i *Issuer) VerifyRefresh(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, i.refreshKey, i.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenMalformed
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrTokenMalformed
	}

	return claims.Subject, nil
}

func (i *Issuer) accessKey(token *jwt.Token) (any, error) {
	return i.accessSecret, nil
}

func (i *Issuer) refreshKey(token *jwt.Token) (any, error) {
	return i.refreshSecret, nil
}

func (i *Issuer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
}
