package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/getsentry/sentry-go"

	"hackreg/internal/account"
)

type identityKey struct{}

// IdentityFromContext returns the identity the session middleware attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

func withIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Sessions is the per-request gatekeeper: it verifies the access cookie,
// silently refreshes a cleanly expired one, and enforces role membership
// before the wrapped handler runs.
type Sessions struct {
	service *Service
	cookies CookieWriter
}

func NewSessions(service *Service, cookies CookieWriter) *Sessions {
	return &Sessions{service: service, cookies: cookies}
}

// Guard wraps a handler. With no roles any authenticated identity passes;
// otherwise the identity's role must be a member of the allowed set.
func (s *Sessions) Guard(next http.Handler, roles ...account.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticate(w, r)
		if err != nil {
			if isDenial(err) {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			// Store unreachable or another infrastructure failure: deny
			// without pretending to know who the caller is.
			sentry.CaptureException(err)
			writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, identity.Role) {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (s *Sessions) authenticate(w http.ResponseWriter, r *http.Request) (Identity, error) {
	access := cookieValue(r, accessCookieName)
	if access == "" {
		return Identity{}, ErrUnauthenticated
	}

	identity, err := s.service.issuer.VerifyAccess(access)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrTokenExpired) {
		// Malformed or tampered tokens are fatal; only a clean expiry may
		// fall through to the refresh path.
		return Identity{}, err
	}

	refresh := cookieValue(r, refreshCookieName)
	if refresh == "" {
		return Identity{}, ErrUnauthenticated
	}

	session, err := s.service.Refresh(r.Context(), refresh)
	if err != nil {
		if isDenial(err) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, err
	}

	s.cookies.Write(w, session.Tokens)
	return session.Identity, nil
}

func isDenial(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}
