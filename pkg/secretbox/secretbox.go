// pkg/secretbox/secretbox.go
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Blob format: version byte 0x01 | GCM nonce | ciphertext.
const blobVersion = 0x01

// ErrDecrypt covers every decryption failure mode (tamper, wrong key, short or
// unknown-version blob). Callers must not leak which one occurred.
var ErrDecrypt = errors.New("secretbox: decrypt failed")

// Box performs symmetric encryption and keyed hashing with a single master
// key. It holds no other state; the key is injected from config at startup.
type Box struct {
	key []byte
}

// New decodes a base64 master key and returns a Box. The key must decode to
// 32 bytes (AES-256).
func New(keyB64 string) (*Box, error) {
	k, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode key: %w", err)
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("secretbox: key must be 32 bytes, got %d", len(k))
	}
	return &Box{key: k}, nil
}

// NewFromBytes returns a Box over a raw 32-byte key. Used by tests.
func NewFromBytes(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secretbox: key must be 32 bytes, got %d", len(key))
	}
	k := make([]byte, 32)
	copy(k, key)
	return &Box{key: k}, nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with a random nonce. Encrypting the same plaintext
// twice yields different blobs.
func (b *Box) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := b.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = blobVersion
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. Any failure returns ErrDecrypt.
func (b *Box) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < 2 || blob[0] != blobVersion {
		return nil, ErrDecrypt
	}
	aead, err := b.gcm()
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(blob) < 1+aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce := blob[1 : 1+aead.NonceSize()]
	ct := blob[1+aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// EncryptString is Encrypt over a string value.
func (b *Box) EncryptString(s string) ([]byte, error) { return b.Encrypt([]byte(s)) }

// DecryptString is Decrypt returning a string value.
func (b *Box) DecryptString(blob []byte) (string, error) {
	pt, err := b.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// HashKey returns a hex HMAC-SHA256 digest of an API public key. Raw keys are
// never stored; lookups hash the presented key and compare digests.
func (b *Box) HashKey(apiKey string) string {
	m := hmac.New(sha256.New, b.key)
	m.Write([]byte(apiKey))
	return hex.EncodeToString(m.Sum(nil))
}

// ConstantTimeEqual compares two secret-derived strings without leaking the
// position of the first mismatch.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
