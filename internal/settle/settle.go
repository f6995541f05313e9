// Package settle implements the Settler (spec.md §4.5): it dispatches a
// verified authorization to one of two settlement strategies, persists a
// TransactionRecord for the Confirmer to finish tracking, and optionally
// anchors a successful EIP-3009 settlement with the identity collaborator.
package settle

import (
	"context"
	"log"
	"math/big"

	"github.com/google/uuid"

	"github.com/evmx402/facilitator/internal/identity"
	"github.com/evmx402/facilitator/internal/registry"
	"github.com/evmx402/facilitator/internal/store"
	domain "github.com/evmx402/facilitator/internal/types"
)

// Registry is the subset of *registry.Registry the Settler depends on.
type Registry interface {
	AddressOf(network, symbol string) (string, error)
	WalletClientFor(network string) (registry.WalletClient, error)
	ConfirmationsOf(network string) (uint64, error)
}

// SubmitInput carries everything a Strategy needs to broadcast and await
// one settlement's on-chain leg(s).
type SubmitInput struct {
	TokenAddress          string
	PayTo                 string
	TreasuryAddress       string
	Auth                  domain.Authorization
	FeeAmount             *big.Int
	NetAmount             *big.Int
	Wallet                registry.WalletClient
	RequiredConfirmations uint64
}

// SubmitResult is a Strategy's outcome before it is written to the store.
type SubmitResult struct {
	TxHash      string
	TxHashFee   string
	Status      domain.TxStatus
	BlockNumber uint64
}

// Strategy submits one settlement's on-chain transaction(s) and awaits
// confirmation, selected by the token's SupportsEIP3009 flag.
type Strategy interface {
	Submit(ctx context.Context, in SubmitInput) (SubmitResult, error)
}

// Settler orchestrates verification-to-chain dispatch for POST /settle.
type Settler struct {
	registry        Registry
	store           store.TransactionStore
	identity        *identity.Client
	treasuryAddress string
	idGen           func() string
}

// New constructs a Settler. identityClient may be nil, in which case agent
// anchoring is always skipped.
func New(reg Registry, txStore store.TransactionStore, identityClient *identity.Client, treasuryAddress string) *Settler {
	return &Settler{
		registry:        reg,
		store:           txStore,
		identity:        identityClient,
		treasuryAddress: treasuryAddress,
		idGen:           func() string { return uuid.New().String() },
	}
}

// Outcome is everything the Gateway needs to assemble a /settle response.
type Outcome struct {
	Record domain.TransactionRecord
	Anchor *identity.AnchorReceipt
}

// Settle dispatches to the strategy matching token.SupportsEIP3009,
// persists a pending TransactionRecord before broadcast (so the Confirmer
// can finish the job even if this call's context is cancelled mid-wait),
// and updates it to the strategy's terminal-or-pending outcome afterward.
//
// A non-nil error here is always a SettlementError: the unexpected-failure
// path spec.md §7 reserves for the Settler. Expected rejection (balance,
// nonce, allowance) never reaches Settle — the Verifier catches it first.
func (s *Settler) Settle(
	ctx context.Context,
	network domain.Network,
	token domain.Token,
	payTo string,
	auth domain.Authorization,
	feeAmount, netAmount *big.Int,
	agentID string,
) (Outcome, error) {
	tokenAddress, err := s.registry.AddressOf(network.Slug, token.Symbol)
	if err != nil {
		return Outcome{}, domain.NewSettlementError("resolve token address", auth.From, network.Slug, "", err)
	}

	wallet, err := s.registry.WalletClientFor(network.Slug)
	if err != nil {
		return Outcome{}, domain.NewSettlementError("resolve wallet client", auth.From, network.Slug, "", err)
	}

	requiredConfirmations, err := s.registry.ConfirmationsOf(network.Slug)
	if err != nil {
		return Outcome{}, domain.NewSettlementError("resolve confirmation depth", auth.From, network.Slug, "", err)
	}

	record := domain.TransactionRecord{ID: s.idGen(), Chain: network.Slug, Status: domain.TxPending}
	if err := s.store.Create(ctx, record); err != nil {
		return Outcome{}, domain.NewSettlementError("persist transaction record", auth.From, network.Slug, "", err)
	}

	strategy := strategyFor(token)
	result, err := strategy.Submit(ctx, SubmitInput{
		TokenAddress:          tokenAddress,
		PayTo:                 payTo,
		TreasuryAddress:       s.treasuryAddress,
		Auth:                  auth,
		FeeAmount:             feeAmount,
		NetAmount:             netAmount,
		Wallet:                wallet,
		RequiredConfirmations: requiredConfirmations,
	})
	if err != nil {
		record.Status = domain.TxFailed
		_ = s.store.Update(ctx, record)
		return Outcome{Record: record}, domain.NewSettlementError("submit transaction", auth.From, network.Slug, "", err)
	}

	record.TxHash = result.TxHash
	record.TxHashFee = result.TxHashFee
	record.Status = result.Status
	record.BlockNumber = result.BlockNumber
	if err := s.store.Update(ctx, record); err != nil {
		return Outcome{Record: record}, domain.NewSettlementError("update transaction record", auth.From, network.Slug, record.TxHash, err)
	}

	outcome := Outcome{Record: record}
	if token.SupportsEIP3009 && record.Status == domain.TxConfirmed && agentID != "" && s.identity != nil {
		anchorReq := identity.AnchorRequest{
			AgentID:     agentID,
			TxHash:      record.TxHash,
			Chain:       network.Slug,
			Amount:      auth.Value,
			PaymentData: auth.Nonce,
		}
		log.Printf("settle: anchoring %s", identity.Describe(anchorReq))
		receipt, ok := s.identity.Anchor(ctx, anchorReq)
		if ok {
			outcome.Anchor = &receipt
		}
	}

	return outcome, nil
}

func strategyFor(token domain.Token) Strategy {
	if token.SupportsEIP3009 {
		return eip3009Strategy{}
	}
	return relayerStrategy{}
}
