package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/tasklists/internal/apperror"
	"github.com/sakif/tasklists/internal/model"
)

// contextKey is unexported so no other package can read or overwrite the
// requester stored in a request context.
type contextKey string

const requesterKey contextKey = "requester"

// CookieName is the HttpOnly cookie that carries the access token.
const CookieName = "token"

var errNoToken = errors.New("auth: no token")

// UserLookup reads the current state of a user account. The gates use it so
// a role change or a deleted account takes effect on the next request rather
// than when the token expires.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth is the "is authenticated" gate.
//
// It reads the JWT from the "token" cookie (browsers) or from an
// "Authorization: Bearer <jwt>" header (API clients), validates it and
// stores the Requester in the request context. Without a valid token the
// chain stops with 401 Unauthorized.
//
// When users is non-nil the role comes from the stored account, not from
// the token claims, and a token for a removed account is rejected.
func RequireAuth(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester, ok := authenticate(w, r, tokens, users)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), requester)))
		})
	}
}

// RequireRole is the "has role" gate. It authenticates like RequireAuth and
// then insists on the given role:
//
//	no/invalid token → 401 Unauthorized
//	wrong role       → 403 Forbidden
//
// Admins pass every role check.
func RequireRole(tokens *TokenService, users UserLookup, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester, ok := authenticate(w, r, tokens, users)
			if !ok {
				return
			}
			if requester.Role != role && !requester.IsAdmin() {
				deny(w, http.StatusForbidden, "forbidden", "role "+role+" required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), requester)))
		})
	}
}

// authenticate resolves the requester or writes the error response itself.
func authenticate(w http.ResponseWriter, r *http.Request, tokens *TokenService, users UserLookup) (model.Requester, bool) {
	requester, err := extractRequester(r, tokens)
	if err != nil {
		deny(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
		return model.Requester{}, false
	}
	if users == nil {
		return requester, true
	}

	user, err := users.GetUserByID(r.Context(), requester.ID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		deny(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return model.Requester{}, false
	case err != nil:
		deny(w, http.StatusInternalServerError, "internal_error", "could not load account")
		return model.Requester{}, false
	}

	requester.Role = user.Role
	if requester.Role == "" {
		requester.Role = model.RoleUser
	}
	return requester, true
}

// WithRequester returns a copy of ctx carrying requester.
// The gates use it; handler tests use it to fake an authenticated request.
func WithRequester(ctx context.Context, requester model.Requester) context.Context {
	return context.WithValue(ctx, requesterKey, requester)
}

// RequesterFromContext returns the authenticated requester, or (zero, false)
// on a route that isn't behind one of the gates.
func RequesterFromContext(ctx context.Context) (model.Requester, bool) {
	requester, ok := ctx.Value(requesterKey).(model.Requester)
	return requester, ok && requester.ID != ""
}

// extractRequester validates the token from the cookie and, failing that,
// the one from the Authorization header. A stale cookie left in the browser
// must not hide a valid header on the same request.
func extractRequester(r *http.Request, tokens *TokenService) (model.Requester, error) {
	cookieErr := errNoToken
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		requester, err := tokens.Validate(cookie.Value)
		if err == nil {
			return requester, nil
		}
		cookieErr = err
	}

	token, ok := bearerToken(r)
	if !ok {
		return model.Requester{}, cookieErr
	}
	return tokens.Validate(token)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
