// Package gateway implements the Request Gateway (spec.md §4.7): rate
// limiting, idempotency caching, and request validation for /verify and
// /settle, built the way the reference facilitator service builds its
// middleware stack (a thin Redis wrapper backing both concerns, with an
// in-memory fallback when Redis is unavailable).
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin wrapper over redis.Client exposing only the
// operations the limiter and idempotency cache need, mirroring the
// reference facilitator's cache.Client.
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL and dials a client, pinging once to fail
// fast on a bad URL or unreachable server.
func NewRedisClient(ctx context.Context, redisURL string) (*RedisClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisClient{rdb: rdb}, nil
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
