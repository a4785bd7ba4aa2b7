package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vantage-cms/vantage-cms/internal/platform/httpx"
)

// Middleware wires the guard into chi handler chains.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// Require enforces the policy on every request passing through. On allow the
// resolved principal is stored in the request context.
func (m Middleware) Require(policy AuthorizationPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, err := BearerToken(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			principal, err := m.Guard.Authorize(r.Context(), policy, bearer)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("authorization denied",
						slog.String("path", r.URL.Path),
						slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePermissions is shorthand for a policy with a single AND-group.
func (m Middleware) RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return m.Require(AuthorizationPolicy{PermissionSets: [][]string{perms}})
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", httpx.ErrUnauthorized
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", httpx.ErrUnauthorized
	}
	return token, nil
}
