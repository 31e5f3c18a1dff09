package credentials

import (
	"context"
	"strings"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"portalbridge/internal/tenants"
	"portalbridge/pkg/scopes"
	"portalbridge/pkg/secretbox"
)

type IssuerTestSuite struct {
	suite.Suite
	mock   pgxmock.PgxPoolIface
	box    *secretbox.Box
	issuer *Issuer
	tenant tenants.Tenant
	ctx    context.Context
}

func (s *IssuerTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock

	s.box, err = secretbox.NewFromBytes(make([]byte, 32))
	assert.NoError(s.T(), err)

	s.issuer = NewIssuer(mock, s.box, zap.NewNop().Sugar())
	s.tenant = tenants.Tenant{
		ID:         "t-1",
		ShopDomain: "acme.myshopify.com",
		Scopes:     scopes.NewSet("read_orders", "write_orders", "read_products"),
		Active:     true,
	}
	s.ctx = context.Background()
}

func (s *IssuerTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestIssuerTestSuite(t *testing.T) {
	suite.Run(t, new(IssuerTestSuite))
}

func (s *IssuerTestSuite) encrypt(v string) []byte {
	enc, err := s.box.EncryptString(v)
	assert.NoError(s.T(), err)
	return enc
}

func (s *IssuerTestSuite) TestCreate() {
	s.mock.ExpectQuery(`INSERT INTO credentials`).
		WithArgs(pgxmock.AnyArg(), "t-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"fulfillment bot", []string{"read_orders", "write_orders"}).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	issued, err := s.issuer.Create(s.ctx, s.tenant, "fulfillment bot", []string{"write_orders", "read_orders"})
	assert.NoError(s.T(), err)
	assert.True(s.T(), strings.HasPrefix(issued.Key, "pk_"))
	assert.True(s.T(), strings.HasPrefix(issued.Secret, "sk_"))
	assert.Len(s.T(), issued.Key, 3+32)
	assert.Len(s.T(), issued.Secret, 3+64)
	assert.Equal(s.T(), issued.Key[:9]+"…", issued.KeyPrefix, "mask shows the prefix only")
	assert.Equal(s.T(), []string{"read_orders", "write_orders"}, issued.Scopes)
}

func (s *IssuerTestSuite) TestCreateRequiresName() {
	_, err := s.issuer.Create(s.ctx, s.tenant, "   ", []string{"read_orders"})
	assert.Error(s.T(), err)
}

func (s *IssuerTestSuite) TestCreateRejectsEmptyScopes() {
	_, err := s.issuer.Create(s.ctx, s.tenant, "bot", nil)
	assert.Error(s.T(), err)
}

func (s *IssuerTestSuite) TestCreateRejectsUngrantedScope() {
	_, err := s.issuer.Create(s.ctx, s.tenant, "bot", []string{"read_orders", "write_customers"})
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "write_customers")
}

func (s *IssuerTestSuite) TestCreateRejectsMalformedScope() {
	_, err := s.issuer.Create(s.ctx, s.tenant, "bot", []string{"admin"})
	assert.Error(s.T(), err)
}

func (s *IssuerTestSuite) authRow(credScopes, tenantScopes []string, secret string, credActive, tenantActive bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "scopes", "secret_encrypted", "active",
		"id", "shop_domain", "access_token_encrypted", "scopes", "active",
	}).AddRow("c-1", "bot", credScopes, s.encrypt(secret), credActive,
		"t-1", "acme.myshopify.com", s.encrypt("shpat_abc"), tenantScopes, tenantActive)
}

func (s *IssuerTestSuite) TestAuthenticate() {
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(s.box.HashKey("pk_aaaa")).
		WillReturnRows(s.authRow([]string{"read_orders", "write_orders"}, []string{"read_orders", "write_orders"}, "sk_bbbb", true, true))

	p, err := s.issuer.Authenticate(s.ctx, "pk_aaaa", "sk_bbbb")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "t-1", p.TenantID)
	assert.Equal(s.T(), "shpat_abc", p.AccessToken)
	assert.Equal(s.T(), "c-1", p.CredentialID)
	assert.True(s.T(), p.Scopes.Contains("write_orders"))
}

func (s *IssuerTestSuite) TestAuthenticateClipsToCurrentGrant() {
	// Re-install shrank the grant; the credential keeps only the overlap.
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(s.box.HashKey("pk_aaaa")).
		WillReturnRows(s.authRow([]string{"read_orders", "write_orders"}, []string{"read_orders"}, "sk_bbbb", true, true))

	p, err := s.issuer.Authenticate(s.ctx, "pk_aaaa", "sk_bbbb")
	assert.NoError(s.T(), err)
	assert.True(s.T(), p.Scopes.Contains("read_orders"))
	assert.False(s.T(), p.Scopes.Contains("write_orders"))
}

func (s *IssuerTestSuite) TestAuthenticateWrongSecret() {
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(s.box.HashKey("pk_aaaa")).
		WillReturnRows(s.authRow([]string{"read_orders"}, []string{"read_orders"}, "sk_bbbb", true, true))

	_, err := s.issuer.Authenticate(s.ctx, "pk_aaaa", "sk_wrong")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *IssuerTestSuite) TestAuthenticateUnknownKey() {
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.issuer.Authenticate(s.ctx, "pk_nope", "sk_nope")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *IssuerTestSuite) TestAuthenticateInactiveCredential() {
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(s.authRow([]string{"read_orders"}, []string{"read_orders"}, "sk_bbbb", false, true))

	_, err := s.issuer.Authenticate(s.ctx, "pk_aaaa", "sk_bbbb")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *IssuerTestSuite) TestAuthenticateInactiveTenant() {
	s.mock.ExpectQuery(`FROM credentials c`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(s.authRow([]string{"read_orders"}, []string{"read_orders"}, "sk_bbbb", true, false))

	_, err := s.issuer.Authenticate(s.ctx, "pk_aaaa", "sk_bbbb")
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *IssuerTestSuite) TestListByTenant() {
	now := time.Now()
	s.mock.ExpectQuery(`SELECT id, name, key_prefix`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "key_prefix", "scopes", "active", "last_used_at", "created_at"}).
			AddRow("c-2", "newer", "pk_bbbbbb…", []string{"read_orders"}, true, nil, now).
			AddRow("c-1", "older", "pk_aaaaaa…", []string{"read_products"}, false, &now, now.Add(-time.Hour)))

	list, err := s.issuer.ListByTenant(s.ctx, "t-1")
	assert.NoError(s.T(), err)
	assert.Len(s.T(), list, 2)
	assert.Equal(s.T(), "newer", list[0].Name)
	assert.Nil(s.T(), list[0].LastUsedAt)
	assert.NotNil(s.T(), list[1].LastUsedAt)
}

func (s *IssuerTestSuite) TestDelete() {
	s.mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs("c-1", "t-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, err := s.issuer.Delete(s.ctx, "c-1", "t-1")
	assert.NoError(s.T(), err)
	assert.True(s.T(), deleted)
}

func (s *IssuerTestSuite) TestDeleteWrongTenant() {
	s.mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs("c-1", "t-other").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := s.issuer.Delete(s.ctx, "c-1", "t-other")
	assert.NoError(s.T(), err)
	assert.False(s.T(), deleted)
}
