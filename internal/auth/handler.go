package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"hackreg/internal/account"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	cookies CookieWriter
}

func NewHandler(service *Service, cookies CookieWriter) *Handler {
	return &Handler{service: service, cookies: cookies}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
	Role  account.Role `json:"role"`
}

func toAccountResponse(a account.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if !decodeJSON(w, r, &body) {
		return
	}

	created, err := h.service.Register(r.Context(), body)
	if err != nil {
		h.writeAccountError(w, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toAccountResponse(created)})
}

// CreateAccount provisions coordinator, evaluator and admin accounts. The
// route table keeps it behind the admin role guard.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body CreateAccountInput
	if !decodeJSON(w, r, &body) {
		return
	}

	created, err := h.service.CreateAccount(r.Context(), body)
	if err != nil {
		h.writeAccountError(w, err, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toAccountResponse(created)})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	session, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var locked *LockedError
		if errors.As(err, &locked) {
			retryAfter := int(locked.RetryAfter(time.Now().UTC()).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusUnauthorized, "account temporarily locked")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.cookies.Write(w, session.Tokens)
	writeJSON(w, http.StatusOK, map[string]any{"user": session.Identity})
}

// Refresh rotates the pair from the path-scoped refresh cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, refreshCookieName)
	if refresh == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	session, err := h.service.Refresh(r.Context(), refresh)
	if err != nil {
		if isDenial(err) {
			h.cookies.Clear(w)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusServiceUnavailable, "failed to refresh session")
		return
	}

	h.cookies.Write(w, session.Tokens)
	writeJSON(w, http.StatusOK, map[string]any{"user": session.Identity})
}

// Logout expires both cookies. Tokens are stateless, so there is nothing
// server-side to revoke; the pair simply ages out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": identity})
}

func (h *Handler) writeAccountError(w http.ResponseWriter, err error, fallback string) {
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, fallback)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
