// pkg/middleware/session.go
package middleware

import (
	"net/http"
	"strings"

	"portalbridge/internal/sessions"
	"portalbridge/pkg/httperr"
)

// SessionAuth guards the portal management endpoints with the bearer session
// token issued at OAuth completion.
func SessionAuth(mgr *sessions.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				httperr.Write(w, httperr.Authentication("missing bearer token"))
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])
			s, err := mgr.Verify(raw)
			if err != nil {
				httperr.Write(w, httperr.Authentication("invalid session"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
