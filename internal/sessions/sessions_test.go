package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	raw, err := m.Issue("tid-1", "foo.myshopify.com")
	require.NoError(t, err)

	s, err := m.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "tid-1", s.TenantID)
	assert.Equal(t, "foo.myshopify.com", s.ShopDomain)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, err := NewManager("test-secret", -time.Minute)
	require.NoError(t, err)
	raw, err := m.Issue("tid-1", "foo.myshopify.com")
	require.NoError(t, err)
	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	m1, _ := NewManager("secret-a", time.Hour)
	m2, _ := NewManager("secret-b", time.Hour)
	raw, err := m1.Issue("tid-1", "foo.myshopify.com")
	require.NoError(t, err)
	_, err = m2.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m, _ := NewManager("secret", time.Hour)
	_, err := m.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour)
	assert.Error(t, err)
}
