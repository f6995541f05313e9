// Package header normalizes the three accepted payment-header shapes into
// one canonical Authorization record (spec.md §4.2).
package header

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/evmx402/facilitator/internal/types"
)

// rawHeader is a permissive decode target covering all three accepted shapes:
//   - flat EIP-3009 {from, to, value, validAfter, validBefore, nonce, v, r, s, signature}
//   - flat with `sender` instead of `from`
//   - wrapped {payload: {authorization: {...}, signature: "0x..."}, v, r, s}
type rawHeader struct {
	From        string      `json:"from"`
	Sender      string      `json:"sender"`
	To          string      `json:"to"`
	Value       string      `json:"value"`
	ValidAfter  json.Number `json:"validAfter"`
	ValidBefore json.Number `json:"validBefore"`
	Nonce       string      `json:"nonce"`
	V           json.Number `json:"v"`
	R           string      `json:"r"`
	S           string      `json:"s"`
	Signature   string      `json:"signature"`

	Payload *struct {
		Authorization *rawHeader `json:"authorization"`
		Signature     string     `json:"signature"`
	} `json:"payload"`
}

// Normalize accepts a base64-encoded JSON string or a raw JSON object and
// produces the canonical Authorization, or InvalidHeaderError.
func Normalize(input json.RawMessage) (domain.Authorization, error) {
	decoded, err := decodeInput(input)
	if err != nil {
		return domain.Authorization{}, err
	}

	var raw rawHeader
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return domain.Authorization{}, domain.NewInvalidHeader("malformed payment header JSON: " + err.Error())
	}

	var auth domain.Authorization
	var signature string

	switch {
	case raw.Payload != nil && raw.Payload.Authorization != nil:
		inner := raw.Payload.Authorization
		auth.From = inner.From
		auth.To = inner.To
		auth.Value = inner.Value
		auth.Nonce = inner.Nonce
		auth.ValidAfter = numberPtr(inner.ValidAfter)
		auth.ValidBefore = numberPtr(inner.ValidBefore)
		signature = firstNonEmpty(raw.Payload.Signature, inner.Signature)
		if v, ok := numberUint8(raw.V); ok {
			auth.V = v
		} else if v, ok := numberUint8(inner.V); ok {
			auth.V = v
		}
		auth.R = firstNonEmpty(raw.R, inner.R)
		auth.S = firstNonEmpty(raw.S, inner.S)

	case raw.From != "" && raw.Nonce != "":
		auth.From = raw.From
		auth.To = raw.To
		auth.Value = raw.Value
		auth.Nonce = raw.Nonce
		auth.ValidAfter = numberPtr(raw.ValidAfter)
		auth.ValidBefore = numberPtr(raw.ValidBefore)
		signature = raw.Signature
		if v, ok := numberUint8(raw.V); ok {
			auth.V = v
		}
		auth.R = raw.R
		auth.S = raw.S

	case raw.Sender != "" && raw.Nonce != "":
		auth.From = raw.Sender
		auth.To = raw.To
		auth.Value = raw.Value
		auth.Nonce = raw.Nonce
		auth.ValidAfter = numberPtr(raw.ValidAfter)
		auth.ValidBefore = numberPtr(raw.ValidBefore)
		signature = raw.Signature
		if v, ok := numberUint8(raw.V); ok {
			auth.V = v
		}
		auth.R = raw.R
		auth.S = raw.S

	default:
		return domain.Authorization{}, domain.NewInvalidHeader("unrecognized payment header shape")
	}

	if err := decomposeSignature(&auth, signature); err != nil {
		return domain.Authorization{}, err
	}

	auth.Nonce = canonicalizeNonce(auth.Nonce)
	if len(auth.Nonce) != 66 {
		return domain.Authorization{}, domain.NewInvalidHeader(fmt.Sprintf("nonce must be 32 bytes, got %d hex chars", len(auth.Nonce)-2))
	}

	return auth, nil
}

// decodeInput handles the "string means base64(JSON)" rule; an object is
// passed through as-is.
func decodeInput(input json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(input))
	if len(trimmed) == 0 {
		return nil, domain.NewInvalidHeader("empty payment header")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return nil, domain.NewInvalidHeader("malformed payment header string: " + err.Error())
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, domain.NewInvalidHeader("payment header is not valid base64: " + err.Error())
		}
		return decoded, nil
	}

	return input, nil
}

// decomposeSignature fills v, r, s on auth. If v/r/s are already present and
// non-zero they are used as-is; otherwise the combined 65-byte signature hex
// is split per spec.md §4.2.
func decomposeSignature(auth *domain.Authorization, signature string) error {
	if auth.V != 0 && auth.R != "" && auth.S != "" {
		return nil
	}

	if signature == "" {
		return domain.NewInvalidHeader("Missing signature")
	}

	sigHex := strings.TrimPrefix(signature, "0x")
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 65 {
		return domain.NewInvalidHeader("signature must be a 65-byte hex string")
	}

	auth.R = "0x" + hex.EncodeToString(sigBytes[0:32])
	auth.S = "0x" + hex.EncodeToString(sigBytes[32:64])
	auth.V = sigBytes[64]
	return nil
}

func canonicalizeNonce(nonce string) string {
	if !strings.HasPrefix(nonce, "0x") {
		return "0x" + nonce
	}
	return nonce
}

func numberPtr(n json.Number) *int64 {
	if n == "" {
		return nil
	}
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func numberUint8(n json.Number) (uint8, bool) {
	if n == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(string(n), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
