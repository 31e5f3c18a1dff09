// pkg/middleware/ratelimit.go
package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"portalbridge/pkg/httperr"
)

// LimitResult is the outcome of one fixed-window check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

// RedisLimiter is a fixed-window counter (INCR + EXPIRE) for horizontally
// scaled deployments.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("rl:%s:%d", key, winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return LimitResult{}, err
	}
	if incr.Val() == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.client.TTL(ctx, redisKey)
	}
	hits := incr.Val()
	res := LimitResult{Allowed: hits <= l.max, Remaining: max64(l.max-hits, 0)}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter < 0 {
			res.RetryAfter = time.Duration(math.Ceil(l.window.Seconds())) * time.Second
		}
	}
	return res, nil
}

// MemoryLimiter is the single-instance fallback; counters are swept when a
// new window starts.
type MemoryLimiter struct {
	mu       sync.Mutex
	hits     map[string]int64
	winStart time.Time
	max      int64
	window   time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{hits: map[string]int64{}, max: int64(max), window: window}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !winStart.Equal(l.winStart) {
		l.hits = map[string]int64{}
		l.winStart = winStart
	}
	l.hits[key]++
	hits := l.hits[key]
	res := LimitResult{Allowed: hits <= l.max, Remaining: max64(l.max-hits, 0)}
	if !res.Allowed {
		res.RetryAfter = winStart.Add(l.window).Sub(now)
	}
	return res, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// RateLimit caps request volume per window, keyed by the presented API key
// with the client address as fallback. Exceeding it is a 429, distinct from
// authorization failure. Limiter errors fail open: resource protection must
// not take the data path down.
func RateLimit(l Limiter, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			if key == "" {
				key = clientAddr(r)
			}
			res, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warnw("rate limiter", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				httperr.Write(w, httperr.RateLimited(int(math.Ceil(res.RetryAfter.Seconds()))))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
