package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"portalbridge/internal/tenants"
	"portalbridge/pkg/db"
	"portalbridge/pkg/scopes"
	"portalbridge/pkg/secretbox"
)

// ErrInvalidCredentials is the single failure mode the authorization gate
// reports: not-found, inactive tenant, secret mismatch and decryption failure
// all collapse into it so the response never reveals which check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	keyPrefix    = "pk_"
	secretPrefix = "sk_"
	keyBytes     = 16
	secretBytes  = 32
)

// Issuer mints, lists, deletes and authenticates portal credentials.
type Issuer struct {
	db  db.Querier
	box *secretbox.Box
	log *zap.SugaredLogger
}

func NewIssuer(q db.Querier, box *secretbox.Box, log *zap.SugaredLogger) *Issuer {
	return &Issuer{db: q, box: box, log: log}
}

func randomToken(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// Create issues a credential for the tenant with an explicit scope subset.
// The subset must be non-empty and within the tenant's grant at creation
// time. Creation is all-or-nothing: on any error nothing is persisted.
func (i *Issuer) Create(ctx context.Context, t tenants.Tenant, name string, scopeSubset []string) (Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Issued{}, fmt.Errorf("name is required")
	}
	subset, err := scopes.ValidateSubset(scopeSubset, t.Scopes)
	if err != nil {
		return Issued{}, err
	}
	key, err := randomToken(keyPrefix, keyBytes)
	if err != nil {
		return Issued{}, err
	}
	secret, err := randomToken(secretPrefix, secretBytes)
	if err != nil {
		return Issued{}, err
	}
	encSecret, err := i.box.EncryptString(secret)
	if err != nil {
		return Issued{}, fmt.Errorf("encrypt secret: %w", err)
	}
	out := Issued{
		Credential: Credential{
			ID:        uuid.NewString(),
			TenantID:  t.ID,
			Name:      name,
			KeyPrefix: key[:len(keyPrefix)+6] + "…",
			Scopes:    subset.Sorted(),
			Active:    true,
		},
		Key:    key,
		Secret: secret,
	}
	row := i.db.QueryRow(ctx, `
		INSERT INTO credentials(id, tenant_id, key_hash, key_prefix, secret_encrypted, name, scopes, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true)
		RETURNING created_at`,
		out.ID, t.ID, i.box.HashKey(key), out.KeyPrefix, encSecret, name, subset.Sorted())
	if err := row.Scan(&out.CreatedAt); err != nil {
		return Issued{}, fmt.Errorf("store credential: %w", err)
	}
	return out, nil
}

// ListByTenant returns credential summaries, newest first. Secrets are never
// included and keys only in masked form.
func (i *Issuer) ListByTenant(ctx context.Context, tenantID string) ([]Credential, error) {
	rows, err := i.db.Query(ctx, `
		SELECT id, name, key_prefix, scopes, active, last_used_at, created_at
		FROM credentials WHERE tenant_id=$1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Credential{}
	for rows.Next() {
		c := Credential{TenantID: tenantID}
		if err := rows.Scan(&c.ID, &c.Name, &c.KeyPrefix, &c.Scopes, &c.Active, &c.LastUsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete hard-deletes a credential, scoped by tenant ownership. Returns false
// (not an error) when no matching row exists, so retries are safe.
func (i *Issuer) Delete(ctx context.Context, credentialID, tenantID string) (bool, error) {
	tag, err := i.db.Exec(ctx, `DELETE FROM credentials WHERE id=$1 AND tenant_id=$2`, credentialID, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Deactivate soft-disables a credential without destroying its audit trail.
func (i *Issuer) Deactivate(ctx context.Context, credentialID, tenantID string) (bool, error) {
	tag, err := i.db.Exec(ctx, `UPDATE credentials SET active=false WHERE id=$1 AND tenant_id=$2`, credentialID, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Authenticate resolves a presented key/secret pair to a Principal. The key is
// looked up by keyed hash; the stored secret is decrypted and compared in
// constant time. Every failure returns ErrInvalidCredentials.
func (i *Issuer) Authenticate(ctx context.Context, key, secret string) (Principal, error) {
	row := i.db.QueryRow(ctx, `
		SELECT c.id, c.name, c.scopes, c.secret_encrypted, c.active,
		       t.id, t.shop_domain, t.access_token_encrypted, t.scopes, t.active
		FROM credentials c
		JOIN tenants t ON t.id = c.tenant_id
		WHERE c.key_hash=$1`, i.box.HashKey(key))
	var (
		credID, credName         string
		credScopes, tenantScopes []string
		encSecret, encToken      []byte
		credActive, tenantActive bool
		tenantID, shopDomain     string
	)
	if err := row.Scan(&credID, &credName, &credScopes, &encSecret, &credActive,
		&tenantID, &shopDomain, &encToken, &tenantScopes, &tenantActive); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			i.log.Errorw("credential lookup", "err", err)
		}
		return Principal{}, ErrInvalidCredentials
	}
	if !credActive || !tenantActive {
		return Principal{}, ErrInvalidCredentials
	}
	storedSecret, err := i.box.DecryptString(encSecret)
	if err != nil {
		i.log.Errorw("credential secret decrypt", "credential", credID, "err", err)
		return Principal{}, ErrInvalidCredentials
	}
	if !secretbox.ConstantTimeEqual(storedSecret, secret) {
		return Principal{}, ErrInvalidCredentials
	}
	token, err := i.box.DecryptString(encToken)
	if err != nil {
		i.log.Errorw("tenant token decrypt", "tenant", tenantID, "err", err)
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{
		TenantID:       tenantID,
		ShopDomain:     shopDomain,
		AccessToken:    token,
		CredentialID:   credID,
		CredentialName: credName,
		Scopes:         scopes.NewSet(credScopes...).Intersect(scopes.NewSet(tenantScopes...)),
	}, nil
}

// TouchLastUsed is best-effort: it runs detached from the request that
// triggered it and only logs on failure.
func (i *Issuer) TouchLastUsed(credentialID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := i.db.Exec(ctx, `UPDATE credentials SET last_used_at=NOW() WHERE id=$1`, credentialID); err != nil {
		i.log.Warnw("touch last_used", "credential", credentialID, "err", err)
	}
}
