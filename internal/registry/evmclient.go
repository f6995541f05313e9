package registry

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	domain "github.com/evmx402/facilitator/internal/types"
)

// Receipt is the facilitator's chain-agnostic view of a transaction receipt.
type Receipt struct {
	Success     bool
	BlockNumber uint64
	TxHash      string
}

// PublicClient is the read-only capability a network vends: balance/contract
// reads, receipt lookup, block number. This is the seam other components use
// to touch the chain, and the seam tests substitute an in-memory gateway for.
type PublicClient interface {
	BalanceOf(ctx context.Context, tokenAddress, holder string) (*big.Int, error)
	Allowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error)
	AuthorizationState(ctx context.Context, tokenAddress, authorizer string, nonce [32]byte) (bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// WalletClient is bound to the facilitator's signing key and performs
// contract writes that pay gas from that key.
type WalletClient interface {
	Address() string
	TransferWithAuthorization(ctx context.Context, tokenAddress string, auth domain.Authorization) (string, error)
	TransferFrom(ctx context.Context, tokenAddress, from, to string, amount *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, txHash string, requiredConfirmations uint64) (*Receipt, error)
}

// evmClient implements both PublicClient and WalletClient against one
// ethclient connection, mirroring the reference facilitator's
// facilitatorEvmSigner (ReadContract/WriteContract over go-ethereum).
type evmClient struct {
	client     *ethclient.Client
	chainID    *big.Int
	erc20ABI   abi.ABI
	eip3009ABI abi.ABI

	privateKey *ecdsa.PrivateKey
	address    common.Address
	hasSigner  bool
}

// NewEVMClient dials rpcURL and, if privateKeyHex is non-empty, attaches a
// signing key for wallet operations.
func NewEVMClient(ctx context.Context, rpcURL, privateKeyHex string) (*evmClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RPC %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	eip3009, err := abi.JSON(strings.NewReader(eip3009ABI))
	if err != nil {
		return nil, fmt.Errorf("parse eip3009 abi: %w", err)
	}

	c := &evmClient{client: client, chainID: chainID, erc20ABI: erc20, eip3009ABI: eip3009}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse facilitator private key: %w", err)
		}
		c.privateKey = key
		c.address = crypto.PubkeyToAddress(key.PublicKey)
		c.hasSigner = true
	}

	return c, nil
}

func (c *evmClient) Address() string {
	return c.address.Hex()
}

// ---------------------------------------------------------------------------
// PublicClient
// ---------------------------------------------------------------------------

func (c *evmClient) BalanceOf(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	if isZeroAddress(tokenAddress) {
		return c.client.BalanceAt(ctx, common.HexToAddress(holder), nil)
	}
	out, err := c.callRead(ctx, tokenAddress, c.erc20ABI, methodBalanceOf, common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	return toBigInt(out)
}

func (c *evmClient) Allowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	out, err := c.callRead(ctx, tokenAddress, c.erc20ABI, methodAllowance, common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	return toBigInt(out)
}

func (c *evmClient) AuthorizationState(ctx context.Context, tokenAddress, authorizer string, nonce [32]byte) (bool, error) {
	out, err := c.callRead(ctx, tokenAddress, c.eip3009ABI, methodAuthorizationState, common.HexToAddress(authorizer), nonce)
	if err != nil {
		return false, err
	}
	used, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type %T", out)
	}
	return used, nil
}

func (c *evmClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

func (c *evmClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber.Uint64(),
		TxHash:      receipt.TxHash.Hex(),
	}, nil
}

func (c *evmClient) callRead(ctx context.Context, contractAddress string, contractABI abi.ABI, method string, args ...interface{}) (interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(result) == 0 {
		switch method {
		case methodAuthorizationState:
			return false, nil
		case methodBalanceOf, methodAllowance:
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("empty result from %s", method)
	}
	outputs, err := contractABI.Methods[method].Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	return outputs[0], nil
}

// ---------------------------------------------------------------------------
// WalletClient
// ---------------------------------------------------------------------------

func (c *evmClient) TransferWithAuthorization(ctx context.Context, tokenAddress string, auth domain.Authorization) (string, error) {
	if !c.hasSigner {
		return "", fmt.Errorf("no signing key configured")
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return "", fmt.Errorf("invalid authorization value %q", auth.Value)
	}
	validAfter := int64ValueOr(auth.ValidAfter, 0)
	validBefore := int64ValueOr(auth.ValidBefore, time.Now().Unix()+3600)
	nonce, err := hexTo32(auth.Nonce)
	if err != nil {
		return "", fmt.Errorf("invalid nonce: %w", err)
	}
	r, err := hexTo32(auth.R)
	if err != nil {
		return "", fmt.Errorf("invalid r: %w", err)
	}
	s, err := hexTo32(auth.S)
	if err != nil {
		return "", fmt.Errorf("invalid s: %w", err)
	}

	data, err := c.eip3009ABI.Pack(
		methodTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value,
		big.NewInt(validAfter),
		big.NewInt(validBefore),
		nonce,
		auth.V,
		r,
		s,
	)
	if err != nil {
		return "", fmt.Errorf("pack transferWithAuthorization: %w", err)
	}

	return c.sendTransaction(ctx, tokenAddress, data)
}

func (c *evmClient) TransferFrom(ctx context.Context, tokenAddress, from, to string, amount *big.Int) (string, error) {
	if !c.hasSigner {
		return "", fmt.Errorf("no signing key configured")
	}
	data, err := c.erc20ABI.Pack(methodTransferFrom, common.HexToAddress(from), common.HexToAddress(to), amount)
	if err != nil {
		return "", fmt.Errorf("pack transferFrom: %w", err)
	}
	return c.sendTransaction(ctx, tokenAddress, data)
}

func (c *evmClient) sendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("get gas price: %w", err)
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTransaction(nonce, toAddr, big.NewInt(0), 300000, gasPrice, data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}

func (c *evmClient) WaitForReceipt(ctx context.Context, txHash string, requiredConfirmations uint64) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			head, err := c.client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("get block number: %w", err)
			}
			if head >= receipt.BlockNumber.Uint64()+requiredConfirmations {
				return &Receipt{
					Success:     receipt.Status == types.ReceiptStatusSuccessful,
					BlockNumber: receipt.BlockNumber.Uint64(),
					TxHash:      receipt.TxHash.Hex(),
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func isZeroAddress(addr string) bool {
	return addr == "" || strings.EqualFold(addr, domain.ZeroAddress)
}

func toBigInt(v interface{}) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected numeric result type %T", v)
	}
	return n, nil
}

func int64ValueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}

func hexTo32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("expected 32-byte hex, got %d hex chars", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
