package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "hush"

// sign appends a valid hmac param the way the platform does: hex
// HMAC-SHA256 over sorted k=v pairs joined by '&', MAC params excluded.
func sign(q url.Values, secret string) url.Values {
	pairs := make([]string, 0, len(q))
	for k, vs := range q {
		if k == "hmac" || k == "signature" {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strings.Join(pairs, "&")))
	out := url.Values{}
	for k, vs := range q {
		out[k] = vs
	}
	out.Set("hmac", hex.EncodeToString(m.Sum(nil)))
	return out
}

func TestVerifyQueryMAC(t *testing.T) {
	q := url.Values{
		"shop":      {"acme.myshopify.com"},
		"code":      {"abc123"},
		"state":     {"deadbeef"},
		"timestamp": {"1700000000"},
	}
	require.True(t, VerifyQueryMAC(sign(q, testSecret), testSecret))
}

func TestVerifyQueryMACRejectsTamper(t *testing.T) {
	q := url.Values{"shop": {"acme.myshopify.com"}, "code": {"abc123"}}
	signed := sign(q, testSecret)
	signed.Set("shop", "evil.myshopify.com")
	assert.False(t, VerifyQueryMAC(signed, testSecret))
}

func TestVerifyQueryMACWrongSecret(t *testing.T) {
	signed := sign(url.Values{"shop": {"acme.myshopify.com"}}, testSecret)
	assert.False(t, VerifyQueryMAC(signed, "other"))
}

func TestVerifyQueryMACMissing(t *testing.T) {
	assert.False(t, VerifyQueryMAC(url.Values{"shop": {"acme.myshopify.com"}}, testSecret))
}

func TestVerifyQueryMACIgnoresSignatureParam(t *testing.T) {
	signed := sign(url.Values{"shop": {"acme.myshopify.com"}, "code": {"abc123"}}, testSecret)
	// Legacy parameter must not enter the message.
	signed.Set("signature", "whatever")
	assert.True(t, VerifyQueryMAC(signed, testSecret))
}

func TestValidShopDomain(t *testing.T) {
	valid := []string{"acme.myshopify.com", "a.myshopify.com", "shop-1.myshopify.com", "UPPER.myshopify.com"}
	for _, s := range valid {
		assert.True(t, ValidShopDomain(s), s)
	}
	invalid := []string{
		"",
		"acme.example.com",
		"acme.myshopify.com.evil.com",
		"-leading.myshopify.com",
		"acme.myshopify.comx",
		"https://acme.myshopify.com",
		"sub.acme.myshopify.com",
	}
	for _, s := range invalid {
		assert.False(t, ValidShopDomain(s), s)
	}
}

func TestMemoryNonceStoreSingleUse(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "acme.myshopify.com", "n1"))

	ok, err := s.Consume(ctx, "acme.myshopify.com", "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "acme.myshopify.com", "n1")
	require.NoError(t, err)
	assert.False(t, ok, "nonce must be single use")
}

func TestMemoryNonceStoreMismatchBurns(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "acme.myshopify.com", "n1"))

	ok, err := s.Consume(ctx, "acme.myshopify.com", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// A failed attempt burns the stored value too.
	ok, err = s.Consume(ctx, "acme.myshopify.com", "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
