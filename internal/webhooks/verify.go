// internal/webhooks/verify.go
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifyMAC recomputes the platform MAC over the exact raw body bytes and
// compares in constant time. The body must be the bytes as received: any
// parse/re-serialize step before this check would break verification.
func VerifyMAC(rawBody []byte, providedMAC, sharedSecret string) bool {
	m := hmac.New(sha256.New, []byte(sharedSecret))
	m.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(m.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(providedMAC))
}
