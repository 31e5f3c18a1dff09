package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalbridge/internal/sessions"
)

func sessionGuarded(mgr *sessions.Manager, saw *sessions.Session) http.Handler {
	var ok http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
		*saw = SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
	return SessionAuth(mgr)(ok)
}

func TestSessionAuth(t *testing.T) {
	mgr, err := sessions.NewManager("s3cret", time.Hour)
	require.NoError(t, err)
	token, err := mgr.Issue("t-1", "acme.myshopify.com")
	require.NoError(t, err)

	var saw sessions.Session
	req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	sessionGuarded(mgr, &saw).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "t-1", saw.TenantID)
	assert.Equal(t, "acme.myshopify.com", saw.ShopDomain)
}

func TestSessionAuthMissingHeader(t *testing.T) {
	mgr, err := sessions.NewManager("s3cret", time.Hour)
	require.NoError(t, err)

	var saw sessions.Session
	req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
	rec := httptest.NewRecorder()
	sessionGuarded(mgr, &saw).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionAuthForeignToken(t *testing.T) {
	mgr, err := sessions.NewManager("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := sessions.NewManager("different", time.Hour)
	require.NoError(t, err)
	token, err := other.Issue("t-1", "acme.myshopify.com")
	require.NoError(t, err)

	var saw sessions.Session
	req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	sessionGuarded(mgr, &saw).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, saw.TenantID)
}
