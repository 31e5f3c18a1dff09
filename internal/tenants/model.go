package tenants

import (
	"time"

	"portalbridge/pkg/scopes"
)

// Tenant is one installed store. AccessToken is held decrypted in memory only;
// at rest it is AES-GCM ciphertext.
type Tenant struct {
	ID          string // uuid
	ShopDomain  string // foo.myshopify.com, unique
	AccessToken string
	Scopes      scopes.Set // granted at install time
	Active      bool
	InstalledAt time.Time
	UpdatedAt   time.Time
}
