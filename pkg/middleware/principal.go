// pkg/middleware/principal.go
package middleware

import (
	"context"

	"portalbridge/internal/credentials"
	"portalbridge/internal/sessions"
)

type ctxPrincipalKey struct{}
type ctxSessionKey struct{}

// WithPrincipal stores the resolved credential principal in context.
func WithPrincipal(ctx context.Context, p credentials.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

// PrincipalFrom extracts the principal; zero value when unauthenticated.
func PrincipalFrom(ctx context.Context) credentials.Principal {
	if v := ctx.Value(ctxPrincipalKey{}); v != nil {
		return v.(credentials.Principal)
	}
	return credentials.Principal{}
}

// WithSession stores a verified portal session in context.
func WithSession(ctx context.Context, s sessions.Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey{}, s)
}

// SessionFrom extracts the session; zero value when absent.
func SessionFrom(ctx context.Context) sessions.Session {
	if v := ctx.Value(ctxSessionKey{}); v != nil {
		return v.(sessions.Session)
	}
	return sessions.Session{}
}
