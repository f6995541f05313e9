package gateway

import (
	"context"
	"sync"
	"time"
)

// LimitInfo describes the outcome of one rate-limit check.
type LimitInfo struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter keyed by client identifier, applied
// as a pre-handler to /verify and /settle only (spec.md §4.7).
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitInfo, error)
}

// RedisLimiter implements the fixed-window algorithm with INCR+EXPIRE,
// mirroring the reference facilitator's RedisLimiter.
type RedisLimiter struct {
	client *RedisClient
	limit  int
	window time.Duration
}

// NewRedisLimiter constructs a Redis-backed fixed-window limiter.
func NewRedisLimiter(client *RedisClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitInfo, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey)
	if err != nil {
		return LimitInfo{}, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window); err != nil {
			return LimitInfo{}, err
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey)
	if err != nil {
		return LimitInfo{}, err
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return LimitInfo{
		Allowed:   int(count) <= l.limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// MemoryLimiter is the in-process fallback used when Redis is
// unconfigured or unreachable, continuing the reference's "continuing
// without Redis (rate limiting disabled)" pattern generalized to
// "continuing with an in-process limiter" instead of disabling the
// feature outright.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter constructs an in-memory fixed-window limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, buckets: make(map[string]*memoryBucket)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (LimitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.resetAt) {
		bucket = &memoryBucket{count: 0, resetAt: now.Add(l.window)}
		l.buckets[key] = bucket
	}
	bucket.count++

	remaining := l.limit - bucket.count
	if remaining < 0 {
		remaining = 0
	}

	return LimitInfo{
		Allowed:   bucket.count <= l.limit,
		Remaining: remaining,
		ResetAt:   bucket.resetAt,
	}, nil
}
