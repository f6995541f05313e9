package eip712

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	domain "github.com/evmx402/facilitator/internal/types"
)

func TestRecoverSigner_MatchesSigningKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	validBefore := int64(1893456000)
	auth := domain.Authorization{
		From:        signer.Hex(),
		To:          "0x2222222222222222222222222222222222222222",
		Value:       "1000000",
		ValidBefore: &validBefore,
		Nonce:       "0x3333333333333333333333333333333333333333333333333333333333333333",
	}

	sep := DomainSeparator("USD Coin", "2", 84532, "0x3333333333333333333333333333333333333333")
	digest, err := AuthorizationDigest(sep, auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	r := "0x" + toHex(sig[0:32])
	s := "0x" + toHex(sig[32:64])
	v := sig[64] + 27

	recovered, err := RecoverSigner(digest, v, r, s)
	require.NoError(t, err)
	require.Equal(t, signer.Hex(), recovered.Hex())
}

func TestRecoverSigner_WrongSignerMismatches(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	validBefore := int64(1893456000)
	auth := domain.Authorization{
		From:        crypto.PubkeyToAddress(other.PublicKey).Hex(),
		To:          "0x2222222222222222222222222222222222222222",
		Value:       "1",
		ValidBefore: &validBefore,
		Nonce:       "0x3333333333333333333333333333333333333333333333333333333333333333",
	}

	sep := DomainSeparator("USD Coin", "2", 84532, "0x3333333333333333333333333333333333333333")
	digest, err := AuthorizationDigest(sep, auth)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	r := "0x" + toHex(sig[0:32])
	s := "0x" + toHex(sig[32:64])
	v := sig[64] + 27

	recovered, err := RecoverSigner(digest, v, r, s)
	require.NoError(t, err)
	require.NotEqual(t, auth.From, recovered.Hex())
}

func TestDomainSeparator_Deterministic(t *testing.T) {
	a := DomainSeparator("USD Coin", "2", 84532, "0x3333333333333333333333333333333333333333")
	b := DomainSeparator("USD Coin", "2", 84532, "0x3333333333333333333333333333333333333333")
	require.Equal(t, a, b)

	c := DomainSeparator("USD Coin", "2", 1, "0x3333333333333333333333333333333333333333")
	require.NotEqual(t, a, c)
}

func TestAuthorizationDigest_InvalidValue(t *testing.T) {
	sep := DomainSeparator("USD Coin", "2", 84532, "0x3333333333333333333333333333333333333333")
	_, err := AuthorizationDigest(sep, domain.Authorization{Value: "not-a-number", Nonce: "0x33"})
	require.Error(t, err)
}

func toHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
