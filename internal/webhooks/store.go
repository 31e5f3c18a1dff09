package webhooks

import (
	"context"
	"time"

	"portalbridge/pkg/db"
)

// Registration is one platform webhook subscription held by a tenant.
type Registration struct {
	ID         int64
	TenantID   string
	Topic      string
	PlatformID string
	Address    string
	CreatedAt  time.Time
}

// Store persists webhook registrations; one row per tenant per topic.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store { return &Store{db: q} }

// Save upserts the registration for a topic (re-install replaces it).
func (s *Store) Save(ctx context.Context, tenantID, topic, platformID, address string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_registrations(tenant_id, topic, platform_id, address)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, topic) DO UPDATE
		  SET platform_id=EXCLUDED.platform_id, address=EXCLUDED.address, created_at=NOW()`,
		tenantID, topic, platformID, address)
	return err
}

// DeleteByTenant removes all registrations for a tenant (uninstall).
func (s *Store) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM webhook_registrations WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
