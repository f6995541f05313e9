package verify

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmx402/facilitator/internal/registry"
	domain "github.com/evmx402/facilitator/internal/types"
)

const (
	fromAddr  = "0x1111111111111111111111111111111111111111"
	toAddr    = "0x2222222222222222222222222222222222222222"
	tokenAddr = "0x3333333333333333333333333333333333333333"
	facAddr   = "0x4444444444444444444444444444444444444444"
	nonceHex  = "0x3333333333333333333333333333333333333333333333333333333333333333"
)

type fakePublicClient struct {
	balance        *big.Int
	allowance      *big.Int
	nonceUsed      bool
	balanceErr     error
	authStateErr   error
}

func (f *fakePublicClient) BalanceOf(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakePublicClient) Allowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakePublicClient) AuthorizationState(ctx context.Context, tokenAddress, authorizer string, nonce [32]byte) (bool, error) {
	if f.authStateErr != nil {
		return false, f.authStateErr
	}
	return f.nonceUsed, nil
}

func (f *fakePublicClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakePublicClient) TransactionReceipt(ctx context.Context, txHash string) (*registry.Receipt, error) {
	return nil, nil
}

type fakeRegistry struct {
	network domain.Network
	token   domain.Token
	public  *fakePublicClient
}

func (f *fakeRegistry) ChainOf(network string) (domain.Network, error) {
	if network != f.network.Slug {
		return domain.Network{}, domain.NewNotSupported("network", network)
	}
	return f.network, nil
}

func (f *fakeRegistry) ResolveAsset(network, asset string) (domain.Token, error) {
	return f.token, nil
}

func (f *fakeRegistry) AddressOf(network, symbol string) (string, error) {
	return tokenAddr, nil
}

func (f *fakeRegistry) PublicClientFor(network string) (registry.PublicClient, error) {
	return f.public, nil
}

func (f *fakeRegistry) FacilitatorAddress(network string) (string, error) {
	return facAddr, nil
}

func newFakeRegistry(supportsEIP3009 bool, balance, allowance *big.Int) *fakeRegistry {
	return &fakeRegistry{
		network: domain.Network{Slug: "base-sepolia", ChainID: 84532, RequiredConfirmations: 2},
		token:   domain.Token{Symbol: "usdc", Decimals: 6, SupportsEIP3009: supportsEIP3009},
		public:  &fakePublicClient{balance: balance, allowance: allowance},
	}
}

func buildRequest(t *testing.T, validBefore, validAfter *int64) domain.VerifyRequest {
	t.Helper()
	h := map[string]interface{}{
		"from":      fromAddr,
		"to":        toAddr,
		"value":     "1000000",
		"nonce":     nonceHex,
		"signature": "0x" + repeatHex("11", 32) + repeatHex("22", 32) + "1b",
	}
	if validBefore != nil {
		h["validBefore"] = *validBefore
	}
	if validAfter != nil {
		h["validAfter"] = *validAfter
	}
	body, err := json.Marshal(h)
	require.NoError(t, err)

	return domain.VerifyRequest{
		X402Version:   1,
		PaymentHeader: body,
		PaymentRequirements: domain.PaymentRequirements{
			Scheme:            "exact",
			Network:           "base-sepolia",
			Asset:             "usdc",
			PayTo:             toAddr,
			MaxAmountRequired: "1000000",
			Resource:          "/widget",
		},
	}
}

func repeatHex(pair string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pair
	}
	return out
}

func TestVerify_HappyPathEIP3009(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	v := New(reg)
	result, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.InvalidReason)
	assert.EqualValues(t, 6, result.Decimals)
}

func TestVerify_UnsupportedNetwork(t *testing.T) {
	req := buildRequest(t, nil, nil)
	req.PaymentRequirements.Network = "nowhere"
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "Unsupported network")
}

func TestVerify_ExpiredAuthorization(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	req := buildRequest(t, &past, nil)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "expired")
}

func TestVerify_NotYetValid(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	req := buildRequest(t, nil, &future)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "not yet valid")
}

func TestVerify_InsufficientBalance(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(100), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "Insufficient")
}

func TestVerify_NonceAlreadyUsed(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)
	reg.public.nonceUsed = true

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "already used")
}

func TestVerify_RelayerInsufficientAllowance(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(false, big.NewInt(5000000), big.NewInt(0))

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "Insufficient allowance")
}

func TestVerify_RelayerSufficientAllowance(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(false, big.NewInt(5000000), big.NewInt(5000000))

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestVerify_MalformedHeaderNeverThrows(t *testing.T) {
	req := buildRequest(t, nil, nil)
	req.PaymentHeader = json.RawMessage(`{"nothing":"useful"}`)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.InvalidReason)
}

func TestVerify_RpcFailurePropagatesAsInvalidReason(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)
	reg.public.balanceErr = assertErr{"rpc timeout"}

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "rpc timeout")
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestVerify_BoundaryAmountEqualsBalance(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(1000000), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestVerify_BoundaryAmountExceedsBalanceByOne(t *testing.T) {
	vb := int64(2000000000)
	req := buildRequest(t, &vb, nil)
	reg := newFakeRegistry(true, big.NewInt(999999), nil)

	result, err := New(reg).Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestVerify_ValidAfterEqualsNowAccepted(t *testing.T) {
	fixedNow := time.Unix(1893456000, 0)
	validAfter := fixedNow.Unix()
	vb := fixedNow.Unix() + 3600
	req := buildRequest(t, &vb, &validAfter)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	v := New(reg).WithClock(func() time.Time { return fixedNow })
	result, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestVerify_ValidAfterOneSecondInFutureRejected(t *testing.T) {
	fixedNow := time.Unix(1893456000, 0)
	validAfter := fixedNow.Unix() + 1
	vb := fixedNow.Unix() + 3600
	req := buildRequest(t, &vb, &validAfter)
	reg := newFakeRegistry(true, big.NewInt(5000000), nil)

	v := New(reg).WithClock(func() time.Time { return fixedNow })
	result, err := v.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}
