package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	domain "github.com/evmx402/facilitator/internal/types"
)

// IdempotencyCache stores the full response body under a request
// fingerprint, TTL-bounded (spec.md §4.7).
type IdempotencyCache interface {
	Get(ctx context.Context, fingerprint string) (json.RawMessage, bool, error)
	Put(ctx context.Context, fingerprint string, response json.RawMessage, ttl time.Duration) error
}

// Fingerprint derives a request fingerprint from the route plus a stable
// subset of the request body: paymentHeader-derived nonce, the
// requirements' resource, payTo, maxAmountRequired, and network. An
// explicit Idempotency-Key header overrides the derived value.
func Fingerprint(route string, req domain.VerifyRequest, idempotencyKeyHeader string) string {
	if idempotencyKeyHeader != "" {
		return idempotencyKeyHeader
	}

	nonce := extractNonce(req.PaymentHeader)

	h := sha256.New()
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	h.Write([]byte{0})
	h.Write([]byte(req.PaymentRequirements.Resource))
	h.Write([]byte{0})
	h.Write([]byte(req.PaymentRequirements.PayTo))
	h.Write([]byte{0})
	h.Write([]byte(req.PaymentRequirements.MaxAmountRequired))
	h.Write([]byte{0})
	h.Write([]byte(req.PaymentRequirements.Network))

	return hex.EncodeToString(h.Sum(nil))
}

// extractNonce best-effort pulls a "nonce" field out of the raw payment
// header for fingerprinting purposes, without requiring a fully normalized
// Authorization (fingerprinting must not fail even for malformed headers,
// since a malformed request must still be deduplicatable). A string header
// is base64-decoded first, matching the header package's input rule.
func extractNonce(raw json.RawMessage) string {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return ""
		}
		raw = decoded
	}

	var shallow struct {
		Nonce   string `json:"nonce"`
		Payload *struct {
			Authorization *struct {
				Nonce string `json:"nonce"`
			} `json:"authorization"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &shallow); err != nil {
		return ""
	}
	if shallow.Payload != nil && shallow.Payload.Authorization != nil {
		return shallow.Payload.Authorization.Nonce
	}
	return shallow.Nonce
}

// RedisIdempotencyCache persists entries in Redis under a TTL.
type RedisIdempotencyCache struct {
	client *RedisClient
}

// NewRedisIdempotencyCache constructs a Redis-backed cache.
func NewRedisIdempotencyCache(client *RedisClient) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client}
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, fingerprint string) (json.RawMessage, bool, error) {
	v, err := c.client.Get(ctx, "idempotency:"+fingerprint)
	if err != nil {
		return nil, false, err
	}
	if v == "" {
		return nil, false, nil
	}
	return json.RawMessage(v), true, nil
}

func (c *RedisIdempotencyCache) Put(ctx context.Context, fingerprint string, response json.RawMessage, ttl time.Duration) error {
	return c.client.Set(ctx, "idempotency:"+fingerprint, string(response), ttl)
}

// MemoryIdempotencyCache is the in-process fallback used when Redis is
// unconfigured.
type MemoryIdempotencyCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	response  json.RawMessage
	expiresAt time.Time
}

// NewMemoryIdempotencyCache constructs an empty in-memory cache.
func NewMemoryIdempotencyCache() *MemoryIdempotencyCache {
	return &MemoryIdempotencyCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryIdempotencyCache) Get(ctx context.Context, fingerprint string) (json.RawMessage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fingerprint]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.response, true, nil
}

func (c *MemoryIdempotencyCache) Put(ctx context.Context, fingerprint string, response json.RawMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = memoryEntry{response: response, expiresAt: time.Now().Add(ttl)}
	return nil
}
