package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/evmx402/facilitator/internal/types"
)

func TestFingerprint_Deterministic(t *testing.T) {
	req := domain.VerifyRequest{
		PaymentHeader: json.RawMessage(`{"nonce":"0x33"}`),
		PaymentRequirements: domain.PaymentRequirements{
			Network: "base-sepolia", PayTo: "0xabc", MaxAmountRequired: "100", Resource: "/x",
		},
	}
	a := Fingerprint("/verify", req, "")
	b := Fingerprint("/verify", req, "")
	assert.Equal(t, a, b)
}

func TestFingerprint_DiffersByRoute(t *testing.T) {
	req := domain.VerifyRequest{
		PaymentHeader:       json.RawMessage(`{"nonce":"0x33"}`),
		PaymentRequirements: domain.PaymentRequirements{Network: "base-sepolia", PayTo: "0xabc", MaxAmountRequired: "100", Resource: "/x"},
	}
	a := Fingerprint("/verify", req, "")
	b := Fingerprint("/settle", req, "")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_IdempotencyKeyOverrides(t *testing.T) {
	req := domain.VerifyRequest{
		PaymentHeader:       json.RawMessage(`{"nonce":"0x33"}`),
		PaymentRequirements: domain.PaymentRequirements{Network: "base-sepolia", PayTo: "0xabc", MaxAmountRequired: "100", Resource: "/x"},
	}
	fp := Fingerprint("/verify", req, "my-key")
	assert.Equal(t, "my-key", fp)
}

func TestFingerprint_ExtractsWrappedNonce(t *testing.T) {
	req := domain.VerifyRequest{
		PaymentHeader: json.RawMessage(`{"payload":{"authorization":{"nonce":"0x44"}}}`),
		PaymentRequirements: domain.PaymentRequirements{
			Network: "base-sepolia", PayTo: "0xabc", MaxAmountRequired: "100", Resource: "/x",
		},
	}
	flat := domain.VerifyRequest{
		PaymentHeader:       json.RawMessage(`{"nonce":"0x44"}`),
		PaymentRequirements: req.PaymentRequirements,
	}
	assert.Equal(t, Fingerprint("/verify", req, ""), Fingerprint("/verify", flat, ""))
}

func TestMemoryIdempotencyCache_RoundTrip(t *testing.T) {
	cache := NewMemoryIdempotencyCache()
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, found)

	body := json.RawMessage(`{"isValid":true}`)
	require.NoError(t, cache.Put(ctx, "fp-1", body, time.Minute))

	got, found, err := cache.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, string(body), string(got))
}

func TestMemoryIdempotencyCache_ExpiresAfterTTL(t *testing.T) {
	cache := NewMemoryIdempotencyCache()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "fp-1", json.RawMessage(`{}`), -time.Second))

	_, found, err := cache.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryLimiter_AllowsUnderLimit(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := l.Allow(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
	}
}

func TestMemoryLimiter_RejectsOverLimit(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "client-1")
	_, _ = l.Allow(ctx, "client-1")
	info, err := l.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
}

func TestMemoryLimiter_SeparateKeysIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	info1, _ := l.Allow(ctx, "a")
	info2, _ := l.Allow(ctx, "b")
	assert.True(t, info1.Allowed)
	assert.True(t, info2.Allowed)
}

func TestValidateRequestBody_ValidPasses(t *testing.T) {
	body := []byte(`{
		"x402Version": 1,
		"paymentHeader": "base64",
		"paymentRequirements": {
			"scheme": "exact", "network": "base-sepolia", "asset": "usdc",
			"payTo": "0xabc", "maxAmountRequired": "1000000", "resource": "/x"
		}
	}`)
	errs, err := ValidateRequestBody(body)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateRequestBody_MissingFieldFails(t *testing.T) {
	body := []byte(`{"x402Version": 1}`)
	errs, err := ValidateRequestBody(body)
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}
