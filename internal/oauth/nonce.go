// internal/oauth/nonce.go
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"portalbridge/pkg/secretbox"
)

// nonceTTL bounds the lifetime of an in-flight OAuth flow. Entries expire
// even if unused, which bounds memory and prevents stale-state replay.
const nonceTTL = 5 * time.Minute

// NonceStore is a short-TTL, single-use store of OAuth state values keyed by
// shop domain.
type NonceStore interface {
	Put(ctx context.Context, shop, nonce string) error
	// Consume returns true only once per stored (shop, nonce) pair.
	Consume(ctx context.Context, shop, nonce string) (bool, error)
}

func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// redisNonceStore backs multi-instance deployments.
type redisNonceStore struct {
	rdb *redis.Client
}

func NewRedisNonceStore(rdb *redis.Client) NonceStore { return &redisNonceStore{rdb: rdb} }

func (s *redisNonceStore) Put(ctx context.Context, shop, nonce string) error {
	return s.rdb.Set(ctx, "oauth:nonce:"+shop, nonce, nonceTTL).Err()
}

func (s *redisNonceStore) Consume(ctx context.Context, shop, nonce string) (bool, error) {
	got, err := s.rdb.GetDel(ctx, "oauth:nonce:"+shop).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return secretbox.ConstantTimeEqual(got, nonce), nil
}

// memoryNonceStore is the single-instance fallback; go-cache evicts expired
// entries on its own sweep.
type memoryNonceStore struct {
	c *gocache.Cache
}

func NewMemoryNonceStore() NonceStore {
	return &memoryNonceStore{c: gocache.New(nonceTTL, time.Minute)}
}

func (s *memoryNonceStore) Put(_ context.Context, shop, nonce string) error {
	s.c.Set(shop, nonce, nonceTTL)
	return nil
}

func (s *memoryNonceStore) Consume(_ context.Context, shop, nonce string) (bool, error) {
	v, ok := s.c.Get(shop)
	if !ok {
		return false, nil
	}
	s.c.Delete(shop)
	got, _ := v.(string)
	return secretbox.ConstantTimeEqual(got, nonce), nil
}
