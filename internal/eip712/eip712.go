// Package eip712 computes EIP-712 typed-data digests for EIP-3009
// transferWithAuthorization and recovers the signer from a (v,r,s)
// signature, so the Verifier can cross-check a payment header's signer
// without an RPC round trip. Hashing follows the manual abi.encode-style
// 32-byte-slot padding technique rather than a generic typed-data library,
// since only this one struct shape is ever hashed.
package eip712

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	domain "github.com/evmx402/facilitator/internal/types"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	authTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)",
	))
)

// DomainSeparator computes the EIP-712 domain separator for one token
// contract on one chain.
func DomainSeparator(name, version string, chainID uint64, verifyingContract string) common.Hash {
	nameHash := crypto.Keccak256Hash([]byte(name))
	versionHash := crypto.Keccak256Hash([]byte(version))

	buf := make([]byte, 0, 32*5)
	buf = append(buf, domainTypeHash.Bytes()...)
	buf = append(buf, nameHash.Bytes()...)
	buf = append(buf, versionHash.Bytes()...)
	buf = append(buf, pad32(new(big.Int).SetUint64(chainID).Bytes())...)
	buf = append(buf, addrPad(common.HexToAddress(verifyingContract))...)

	return crypto.Keccak256Hash(buf)
}

// AuthorizationDigest computes the final EIP-712 digest
// (0x19 0x01 || domainSeparator || structHash) for a transferWithAuthorization.
func AuthorizationDigest(domainSeparator common.Hash, auth domain.Authorization) (common.Hash, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return common.Hash{}, fmt.Errorf("invalid authorization value %q", auth.Value)
	}
	validAfter := int64ValueOr(auth.ValidAfter, 0)
	validBefore := int64ValueOr(auth.ValidBefore, 0)
	nonce, err := hexTo32(auth.Nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid nonce: %w", err)
	}

	buf := make([]byte, 0, 32*6)
	buf = append(buf, authTypeHash.Bytes()...)
	buf = append(buf, addrPad(common.HexToAddress(auth.From))...)
	buf = append(buf, addrPad(common.HexToAddress(auth.To))...)
	buf = append(buf, pad32(value.Bytes())...)
	buf = append(buf, pad32(big.NewInt(validAfter).Bytes())...)
	buf = append(buf, pad32(big.NewInt(validBefore).Bytes())...)
	buf = append(buf, nonce[:]...)
	structHash := crypto.Keccak256Hash(buf)

	digest := make([]byte, 0, 2+32+32)
	digest = append(digest, 0x19, 0x01)
	digest = append(digest, domainSeparator.Bytes()...)
	digest = append(digest, structHash.Bytes()...)

	return crypto.Keccak256Hash(digest), nil
}

// RecoverSigner recovers the address that produced (v,r,s) over digest.
// v is accepted in both the raw recovery-id form (0/1) and the Ethereum
// legacy form (27/28).
func RecoverSigner(digest common.Hash, v uint8, r, s string) (common.Address, error) {
	rBytes, err := hexTo32(r)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid r: %w", err)
	}
	sBytes, err := hexTo32(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid s: %w", err)
	}

	recoveryID := v
	if recoveryID >= 27 {
		recoveryID -= 27
	}

	sig := make([]byte, 65)
	copy(sig[0:32], rBytes[:])
	copy(sig[32:64], sBytes[:])
	sig[64] = recoveryID

	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func pad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func addrPad(addr common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], addr.Bytes())
	return out
}

func int64ValueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}

func hexTo32(s string) ([32]byte, error) {
	trimmed := s
	if len(trimmed) > 2 && trimmed[:2] == "0x" {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 64 {
		return [32]byte{}, fmt.Errorf("expected 32-byte hex, got %d hex chars", len(trimmed))
	}
	return common.HexToHash(s), nil
}
