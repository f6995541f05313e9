// Package verify implements the Verifier (spec.md §4.4): a sequential,
// fail-fast set of checks against a live chain that never throws — every
// failure mode is reported as an invalid reason, mirroring the reference
// ExactEvmScheme.Verify's report-don't-throw discipline.
package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/evmx402/facilitator/internal/eip712"
	"github.com/evmx402/facilitator/internal/header"
	"github.com/evmx402/facilitator/internal/registry"
	domain "github.com/evmx402/facilitator/internal/types"
)

// Result is the outcome of a verification pass. It is never an error value;
// InvalidReason carries the human-readable explanation for isValid=false.
type Result struct {
	IsValid       bool
	InvalidReason string
	Decimals      uint8
	Auth          domain.Authorization
	Token         domain.Token
}

// Clock is overridden in tests to control "now".
type Clock func() time.Time

// Registry is the subset of *registry.Registry the Verifier depends on;
// satisfied structurally by the real registry and substitutable with a
// fake chain gateway in tests, matching the "seam for testing" the
// registry's public/wallet client split is designed for.
type Registry interface {
	ChainOf(network string) (domain.Network, error)
	ResolveAsset(network, asset string) (domain.Token, error)
	AddressOf(network, symbol string) (string, error)
	PublicClientFor(network string) (registry.PublicClient, error)
	FacilitatorAddress(network string) (string, error)
}

// Verifier checks a VerifyRequest against the registry and a live chain.
type Verifier struct {
	registry Registry
	now      Clock
}

// New constructs a Verifier bound to a registry.
func New(reg Registry) *Verifier {
	return &Verifier{registry: reg, now: time.Now}
}

// WithClock overrides the time source, for deterministic tests of the
// validAfter/validBefore boundary checks.
func (v *Verifier) WithClock(clock Clock) *Verifier {
	v.now = clock
	return v
}

// Verify runs the §4.4 algorithm. It never returns a non-nil error for
// expected failure shapes — those are reported via Result.InvalidReason.
// A non-nil error indicates a programming/config defect (e.g. registry not
// wired), which callers should treat as 500, not as an invalid payment.
func (v *Verifier) Verify(ctx context.Context, req domain.VerifyRequest) (Result, error) {
	network, err := v.registry.ChainOf(req.PaymentRequirements.Network)
	if err != nil {
		return invalid(fmt.Sprintf("Unsupported network: %s", req.PaymentRequirements.Network)), nil
	}

	auth, err := header.Normalize(req.PaymentHeader)
	if err != nil {
		return invalid(err.Error()), nil
	}

	token, err := v.registry.ResolveAsset(network.Slug, req.PaymentRequirements.Asset)
	if err != nil {
		return invalid(fmt.Sprintf("Unsupported asset: %s", req.PaymentRequirements.Asset)), nil
	}

	amount, ok := new(big.Int).SetString(req.PaymentRequirements.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 {
		return invalid(fmt.Sprintf("Invalid maxAmountRequired: %s", req.PaymentRequirements.MaxAmountRequired)), nil
	}

	now := v.now().Unix()
	if auth.ValidAfter != nil && now < *auth.ValidAfter {
		return invalidWith(auth, token, fmt.Sprintf("Authorization not yet valid (validAfter=%d, now=%d)", *auth.ValidAfter, now)), nil
	}
	if auth.ValidBefore != nil && now > *auth.ValidBefore {
		return invalidWith(auth, token, fmt.Sprintf("Authorization expired (validBefore=%d, now=%d)", *auth.ValidBefore, now)), nil
	}

	if signerMismatch := v.crossCheckSignature(network, token, auth); signerMismatch != "" {
		return invalidWith(auth, token, signerMismatch), nil
	}

	tokenAddress, err := v.registry.AddressOf(network.Slug, token.Symbol)
	if err != nil {
		return invalid(fmt.Sprintf("Unsupported asset: %s", req.PaymentRequirements.Asset)), nil
	}

	public, err := v.registry.PublicClientFor(network.Slug)
	if err != nil {
		return invalid(err.Error()), nil
	}

	balance, err := public.BalanceOf(ctx, tokenAddress, auth.From)
	if err != nil {
		return invalidWith(auth, token, err.Error()), nil
	}
	if balance.Cmp(amount) < 0 {
		return invalidWith(auth, token, fmt.Sprintf(
			"Insufficient %s balance. Required: %s, Available: %s",
			strings.ToUpper(token.Symbol), amount.String(), balance.String(),
		)), nil
	}

	if token.SupportsEIP3009 {
		nonce, err := hexTo32(auth.Nonce)
		if err != nil {
			return invalidWith(auth, token, err.Error()), nil
		}
		used, err := public.AuthorizationState(ctx, tokenAddress, auth.From, nonce)
		if err != nil {
			return invalidWith(auth, token, err.Error()), nil
		}
		if used {
			return invalidWith(auth, token, fmt.Sprintf("Authorization already used (nonce: %s)", auth.Nonce)), nil
		}
	} else {
		facilitatorAddress, err := v.registry.FacilitatorAddress(network.Slug)
		if err != nil {
			return invalidWith(auth, token, err.Error()), nil
		}
		allowance, err := public.Allowance(ctx, tokenAddress, auth.From, facilitatorAddress)
		if err != nil {
			return invalidWith(auth, token, err.Error()), nil
		}
		if allowance.Cmp(amount) < 0 {
			return invalidWith(auth, token, fmt.Sprintf(
				"Insufficient allowance. Required: %s, Available: %s", amount.String(), allowance.String(),
			)), nil
		}
	}

	return Result{IsValid: true, Decimals: token.Decimals, Auth: auth, Token: token}, nil
}

// crossCheckSignature recovers the signer from (v,r,s) against the EIP-712
// digest and compares it to auth.From before spending an RPC round trip.
// It only applies to EIP-3009 tokens, since the relayer path has no
// on-chain signature to check against. A failure to construct the digest
// (e.g. unsupported token outside EIP-3009) is silently skipped: the
// on-chain checks remain authoritative for replay either way.
func (v *Verifier) crossCheckSignature(network domain.Network, token domain.Token, auth domain.Authorization) string {
	if !token.SupportsEIP3009 || token.EIP712Name == "" {
		return ""
	}
	tokenAddress, err := v.registry.AddressOf(network.Slug, token.Symbol)
	if err != nil {
		return ""
	}

	sep := eip712.DomainSeparator(token.EIP712Name, token.EIP712Version, network.ChainID, tokenAddress)
	digest, err := eip712.AuthorizationDigest(sep, auth)
	if err != nil {
		return ""
	}

	signer, err := eip712.RecoverSigner(digest, auth.V, auth.R, auth.S)
	if err != nil {
		return ""
	}

	if !strings.EqualFold(signer.Hex(), auth.From) {
		return fmt.Sprintf("Unauthorized: signature does not match from address (recovered %s)", signer.Hex())
	}
	return ""
}

func invalid(reason string) Result {
	return Result{IsValid: false, InvalidReason: reason}
}

func invalidWith(auth domain.Authorization, token domain.Token, reason string) Result {
	return Result{IsValid: false, InvalidReason: reason, Auth: auth, Token: token, Decimals: token.Decimals}
}

func hexTo32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("nonce must be 32 bytes, got %d hex chars", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}
