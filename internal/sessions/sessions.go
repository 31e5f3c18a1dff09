// internal/sessions/sessions.go
package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const issuerName = "portalbridge"

var ErrInvalidSession = errors.New("invalid session")

// Manager issues and verifies HS256 session tokens for tenant-owner
// management actions. Claims: sub = tenant id, dom = shop domain.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("sessions: secret is required")
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

type Session struct {
	TenantID   string
	ShopDomain string
}

// Issue signs a session token with a fixed expiry.
func (m *Manager) Issue(tenantID, shopDomain string) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Issuer(issuerName).
		Subject(tenantID).
		Claim("dom", shopDomain).
		IssuedAt(now).
		Expiration(now.Add(m.ttl)).
		Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify parses and validates a token, returning the bound session.
func (m *Manager) Verify(raw string) (Session, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithIssuer(issuerName),
		jwt.WithValidate(true),
	)
	if err != nil {
		return Session{}, ErrInvalidSession
	}
	s := Session{TenantID: tok.Subject()}
	if v, ok := tok.Get("dom"); ok {
		s.ShopDomain, _ = v.(string)
	}
	if s.TenantID == "" || s.ShopDomain == "" {
		return Session{}, ErrInvalidSession
	}
	return s, nil
}
