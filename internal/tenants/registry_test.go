package tenants

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"portalbridge/pkg/scopes"
	"portalbridge/pkg/secretbox"
)

type RegistryTestSuite struct {
	suite.Suite
	mock pgxmock.PgxPoolIface
	box  *secretbox.Box
	reg  *Registry
	ctx  context.Context
}

func (s *RegistryTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(s.T(), err)
	s.mock = mock

	s.box, err = secretbox.NewFromBytes(make([]byte, 32))
	assert.NoError(s.T(), err)

	s.reg = NewRegistry(mock, s.box, zap.NewNop().Sugar())
	s.ctx = context.Background()
}

func (s *RegistryTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) encrypt(token string) []byte {
	enc, err := s.box.EncryptString(token)
	assert.NoError(s.T(), err)
	return enc
}

func (s *RegistryTestSuite) TestUpsert() {
	now := time.Now()
	granted := scopes.NewSet("read_orders", "write_products")

	s.mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs(pgxmock.AnyArg(), "acme.myshopify.com", pgxmock.AnyArg(), granted.Sorted()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "installed_at", "updated_at"}).
			AddRow("t-1", now, now))

	t, err := s.reg.Upsert(s.ctx, "acme.myshopify.com", "shpat_abc", granted)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "t-1", t.ID)
	assert.Equal(s.T(), "acme.myshopify.com", t.ShopDomain)
	assert.Equal(s.T(), "shpat_abc", t.AccessToken)
	assert.True(s.T(), t.Active)
}

func (s *RegistryTestSuite) TestGetByDomain() {
	now := time.Now()
	s.mock.ExpectQuery(`SELECT id, shop_domain, access_token_encrypted, scopes, active, installed_at, updated_at`).
		WithArgs("acme.myshopify.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "shop_domain", "access_token_encrypted", "scopes", "active", "installed_at", "updated_at"}).
			AddRow("t-1", "acme.myshopify.com", s.encrypt("shpat_abc"), []string{"read_orders"}, true, now, now))

	t, err := s.reg.GetByDomain(s.ctx, "acme.myshopify.com")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "shpat_abc", t.AccessToken, "token must come back decrypted")
	assert.True(s.T(), t.Scopes.Contains("read_orders"))
}

func (s *RegistryTestSuite) TestGetByDomainNotFound() {
	s.mock.ExpectQuery(`SELECT id, shop_domain`).
		WithArgs("gone.myshopify.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.reg.GetByDomain(s.ctx, "gone.myshopify.com")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *RegistryTestSuite) TestGetByDomainCorruptToken() {
	now := time.Now()
	s.mock.ExpectQuery(`SELECT id, shop_domain`).
		WithArgs("acme.myshopify.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "shop_domain", "access_token_encrypted", "scopes", "active", "installed_at", "updated_at"}).
			AddRow("t-1", "acme.myshopify.com", []byte("not a ciphertext"), []string{"read_orders"}, true, now, now))

	_, err := s.reg.GetByDomain(s.ctx, "acme.myshopify.com")
	assert.Error(s.T(), err)
	assert.NotErrorIs(s.T(), err, ErrNotFound)
}

func (s *RegistryTestSuite) TestDeactivate() {
	s.mock.ExpectExec(`UPDATE tenants SET active=false`).
		WithArgs("acme.myshopify.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(s.T(), s.reg.Deactivate(s.ctx, "acme.myshopify.com"))
}

func (s *RegistryTestSuite) TestDeactivateUnknownDomain() {
	s.mock.ExpectExec(`UPDATE tenants SET active=false`).
		WithArgs("gone.myshopify.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(s.T(), s.reg.Deactivate(s.ctx, "gone.myshopify.com"), ErrNotFound)
}
