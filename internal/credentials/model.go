package credentials

import (
	"time"

	"portalbridge/pkg/scopes"
)

// Credential is an issued (public key, secret) pair scoped to a subset of the
// owning tenant's grant. The secret never appears here; it is returned in
// clear exactly once at creation.
type Credential struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"-"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"` // masked display form, e.g. "pk_3fa2…"
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Issued is the one-time creation response carrying the clear key and secret.
type Issued struct {
	Credential
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Principal is a resolved credential attached to the request context after
// authentication.
type Principal struct {
	TenantID       string
	ShopDomain     string
	AccessToken    string // tenant's decrypted platform token
	CredentialID   string
	CredentialName string
	// Effective scopes: credential scopes intersected with the tenant's
	// current grant, so a shrunken re-install clips old credentials.
	Scopes scopes.Set
}
