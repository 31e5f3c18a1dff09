package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"portalbridge/pkg/db"
	"portalbridge/pkg/scopes"
	"portalbridge/pkg/secretbox"
)

var ErrNotFound = errors.New("tenant not found")

// Registry stores one row per installed store. Platform access tokens are
// encrypted before they touch the database and decrypted transparently on
// read; a decryption failure propagates instead of returning corrupt data.
type Registry struct {
	db  db.Querier
	box *secretbox.Box
	log *zap.SugaredLogger
}

func NewRegistry(q db.Querier, box *secretbox.Box, log *zap.SugaredLogger) *Registry {
	return &Registry{db: q, box: box, log: log}
}

// Upsert inserts or refreshes the tenant for a domain and reactivates it.
// Re-running OAuth for an already-installed store just refreshes token and
// scopes.
func (r *Registry) Upsert(ctx context.Context, domain, rawToken string, granted scopes.Set) (Tenant, error) {
	enc, err := r.box.EncryptString(rawToken)
	if err != nil {
		return Tenant{}, fmt.Errorf("encrypt access token: %w", err)
	}
	t := Tenant{ShopDomain: domain, AccessToken: rawToken, Scopes: granted, Active: true}
	row := r.db.QueryRow(ctx, `
		INSERT INTO tenants(id, shop_domain, access_token_encrypted, scopes, active)
		VALUES ($1,$2,$3,$4,true)
		ON CONFLICT (shop_domain) DO UPDATE
		  SET access_token_encrypted=EXCLUDED.access_token_encrypted,
		      scopes=EXCLUDED.scopes,
		      active=true,
		      updated_at=NOW()
		RETURNING id, installed_at, updated_at`,
		uuid.NewString(), domain, enc, granted.Sorted())
	if err := row.Scan(&t.ID, &t.InstalledAt, &t.UpdatedAt); err != nil {
		return Tenant{}, fmt.Errorf("upsert tenant: %w", err)
	}
	return t, nil
}

// GetByDomain returns the active tenant for a shop domain.
func (r *Registry) GetByDomain(ctx context.Context, domain string) (Tenant, error) {
	return r.get(ctx, `SELECT id, shop_domain, access_token_encrypted, scopes, active, installed_at, updated_at
		FROM tenants WHERE shop_domain=$1 AND active`, domain)
}

// GetByID returns the active tenant by uuid.
func (r *Registry) GetByID(ctx context.Context, id string) (Tenant, error) {
	return r.get(ctx, `SELECT id, shop_domain, access_token_encrypted, scopes, active, installed_at, updated_at
		FROM tenants WHERE id=$1 AND active`, id)
}

func (r *Registry) get(ctx context.Context, query string, arg any) (Tenant, error) {
	var t Tenant
	var enc []byte
	var scopeList []string
	row := r.db.QueryRow(ctx, query, arg)
	if err := row.Scan(&t.ID, &t.ShopDomain, &enc, &scopeList, &t.Active, &t.InstalledAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("load tenant: %w", err)
	}
	tok, err := r.box.DecryptString(enc)
	if err != nil {
		return Tenant{}, fmt.Errorf("tenant %s: %w", t.ShopDomain, err)
	}
	t.AccessToken = tok
	t.Scopes = scopes.NewSet(scopeList...)
	return t, nil
}

// Deactivate marks the tenant inactive. Credentials and activity survive for
// audit; the authorization gate rejects credentials of inactive tenants on the
// next request.
func (r *Registry) Deactivate(ctx context.Context, domain string) error {
	tag, err := r.db.Exec(ctx, `UPDATE tenants SET active=false, updated_at=NOW() WHERE shop_domain=$1`, domain)
	if err != nil {
		return fmt.Errorf("deactivate tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
