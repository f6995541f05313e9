package confirmer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evmx402/facilitator/internal/registry"
	"github.com/evmx402/facilitator/internal/store"
	domain "github.com/evmx402/facilitator/internal/types"
)

type fakePublicClient struct {
	blockNumber uint64
	receipt     *registry.Receipt
	receiptErr  error
}

func (f *fakePublicClient) BalanceOf(ctx context.Context, tokenAddress, holder string) (*big.Int, error) {
	return nil, nil
}

func (f *fakePublicClient) Allowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	return nil, nil
}

func (f *fakePublicClient) AuthorizationState(ctx context.Context, tokenAddress, authorizer string, nonce [32]byte) (bool, error) {
	return false, nil
}

func (f *fakePublicClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, nil
}

func (f *fakePublicClient) TransactionReceipt(ctx context.Context, txHash string) (*registry.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

type fakeChainLookup struct {
	public               map[string]*fakePublicClient
	requiredConfirmations map[string]uint64
	lookupErr            map[string]error
}

func (f *fakeChainLookup) PublicClientFor(network string) (registry.PublicClient, error) {
	if err, ok := f.lookupErr[network]; ok {
		return nil, err
	}
	return f.public[network], nil
}

func (f *fakeChainLookup) ConfirmationsOf(network string) (uint64, error) {
	return f.requiredConfirmations[network], nil
}

func TestConfirmer_NoStoreIsNoOp(t *testing.T) {
	c := New(nil, &fakeChainLookup{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx) // must return promptly, not panic
}

func TestConfirmer_MonotonicTransitionPendingToConfirmed(t *testing.T) {
	txStore := store.NewMemoryStore()
	require.NoError(t, txStore.Create(context.Background(), domain.TransactionRecord{
		ID: "tx-1", TxHash: "0xabc", Chain: "base-sepolia", Status: domain.TxPending, BlockNumber: 100,
	}))

	public := &fakePublicClient{blockNumber: 101, receipt: &registry.Receipt{Success: true, BlockNumber: 100, TxHash: "0xabc"}}
	chains := &fakeChainLookup{
		public:                map[string]*fakePublicClient{"base-sepolia": public},
		requiredConfirmations: map[string]uint64{"base-sepolia": 2},
	}

	c := New(txStore, chains)
	c.sweepOnce(context.Background())

	record, err := txStore.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, record.Status)
	assert.EqualValues(t, 1, record.Confirmations)

	public.blockNumber = 102
	c.sweepOnce(context.Background())

	record, err = txStore.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, record.Status)
	assert.EqualValues(t, 2, record.Confirmations)
	assert.NotNil(t, record.ConfirmedAt)
}

func TestConfirmer_FailedReceiptMapsToFailedStatus(t *testing.T) {
	txStore := store.NewMemoryStore()
	require.NoError(t, txStore.Create(context.Background(), domain.TransactionRecord{
		ID: "tx-1", TxHash: "0xabc", Chain: "base-sepolia", Status: domain.TxPending, BlockNumber: 100,
	}))

	public := &fakePublicClient{blockNumber: 105, receipt: &registry.Receipt{Success: false, BlockNumber: 100, TxHash: "0xabc"}}
	chains := &fakeChainLookup{
		public:                map[string]*fakePublicClient{"base-sepolia": public},
		requiredConfirmations: map[string]uint64{"base-sepolia": 2},
	}

	c := New(txStore, chains)
	c.sweepOnce(context.Background())

	record, err := txStore.Get(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, record.Status)
}

func TestConfirmer_FaultIsolationContinuesSweep(t *testing.T) {
	txStore := store.NewMemoryStore()
	require.NoError(t, txStore.Create(context.Background(), domain.TransactionRecord{
		ID: "broken", TxHash: "0xbad", Chain: "broken-chain", Status: domain.TxPending, BlockNumber: 100,
	}))
	require.NoError(t, txStore.Create(context.Background(), domain.TransactionRecord{
		ID: "healthy", TxHash: "0xgood", Chain: "base-sepolia", Status: domain.TxPending, BlockNumber: 100,
	}))

	public := &fakePublicClient{blockNumber: 105, receipt: &registry.Receipt{Success: true, BlockNumber: 100, TxHash: "0xgood"}}
	chains := &fakeChainLookup{
		public:                map[string]*fakePublicClient{"base-sepolia": public},
		requiredConfirmations: map[string]uint64{"base-sepolia": 2, "broken-chain": 2},
		lookupErr:             map[string]error{"broken-chain": errors.New("rpc unreachable")},
	}

	c := New(txStore, chains)
	c.sweepOnce(context.Background())

	healthy, err := txStore.Get(context.Background(), "healthy")
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, healthy.Status)

	broken, err := txStore.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, broken.Status, "failed sweep must leave the record untouched, not crash")
}

func TestConfirmer_ListErrorDoesNotPanic(t *testing.T) {
	c := New(&erroringStore{}, &fakeChainLookup{})
	c.sweepOnce(context.Background())
}

type erroringStore struct{}

func (erroringStore) Create(ctx context.Context, record domain.TransactionRecord) error { return nil }
func (erroringStore) Update(ctx context.Context, record domain.TransactionRecord) error { return nil }
func (erroringStore) Get(ctx context.Context, id string) (domain.TransactionRecord, error) {
	return domain.TransactionRecord{}, nil
}
func (erroringStore) ListNonTerminal(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	return nil, errors.New("store unavailable")
}
