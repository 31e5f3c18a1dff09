// pkg/middleware/credential.go
package middleware

import (
	"net/http"

	"portalbridge/internal/credentials"
	"portalbridge/pkg/httperr"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderAPISecret = "X-API-Secret"
)

// CredentialAuth authenticates the key/secret header pair on every proxied
// request. Missing headers are reported distinctly from invalid ones; all
// invalid causes collapse into one response. On success the resolved
// principal is attached to the context and last-used is touched off the
// request path.
func CredentialAuth(issuer *credentials.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			secret := r.Header.Get(HeaderAPISecret)
			if key == "" || secret == "" {
				httperr.Write(w, httperr.Authentication("missing credentials"))
				return
			}
			p, err := issuer.Authenticate(r.Context(), key, secret)
			if err != nil {
				httperr.Write(w, httperr.Authentication("invalid credentials"))
				return
			}
			go issuer.TouchLastUsed(p.CredentialID)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
