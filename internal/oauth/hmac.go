// internal/oauth/hmac.go
package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// VerifyQueryMAC checks the hex MAC the platform appends to OAuth callback
// and install URLs: HMAC-SHA256 over the sorted, '&'-joined k=v query pairs,
// excluding the MAC parameter itself. This is a different message
// construction from the webhook body MAC and must stay separate.
func VerifyQueryMAC(query url.Values, sharedSecret string) bool {
	provided := query.Get("hmac")
	if provided == "" {
		return false
	}
	pairs := make([]string, 0, len(query))
	for k, vs := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	m := hmac.New(sha256.New, []byte(sharedSecret))
	m.Write([]byte(strings.Join(pairs, "&")))
	expected := hex.EncodeToString(m.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

var shopDomainRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

// ValidShopDomain guards against redirecting the install flow to an arbitrary
// host.
func ValidShopDomain(shop string) bool {
	return shopDomainRe.MatchString(shop)
}
