package settle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	domain "github.com/evmx402/facilitator/internal/types"
)

// relayerStrategy submits two transferFrom calls concurrently (merchant
// leg and treasury fee leg), matching spec.md §4.5.2. The strategy is
// deliberately not atomic: a non-success on either leg is reported as
// partial_settlement, with both hashes surfaced so operators can
// reconcile manually.
type relayerStrategy struct{}

type legOutcome struct {
	txHash      string
	success     bool
	blockNumber uint64
	err         error
}

func (relayerStrategy) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if in.TreasuryAddress == "" {
		return SubmitResult{}, fmt.Errorf("relayer settlement requires a configured treasury address")
	}

	outcomes := make([]legOutcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		outcomes[0] = submitLeg(ctx, in, in.PayTo, in.NetAmount)
	}()
	go func() {
		defer wg.Done()
		outcomes[1] = submitLeg(ctx, in, in.TreasuryAddress, in.FeeAmount)
	}()

	wg.Wait()

	merchant, fee := outcomes[0], outcomes[1]
	status := domain.TxConfirmed
	if merchant.err != nil || fee.err != nil || !merchant.success || !fee.success {
		status = domain.TxPartialSettlement
	}

	blockNumber := merchant.blockNumber
	if blockNumber == 0 {
		blockNumber = fee.blockNumber
	}

	return SubmitResult{
		TxHash:      merchant.txHash,
		TxHashFee:   fee.txHash,
		Status:      status,
		BlockNumber: blockNumber,
	}, nil
}

func submitLeg(ctx context.Context, in SubmitInput, to string, amount *big.Int) legOutcome {
	txHash, err := in.Wallet.TransferFrom(ctx, in.TokenAddress, in.Auth.From, to, amount)
	if err != nil {
		return legOutcome{err: fmt.Errorf("transferFrom to %s: %w", to, err)}
	}

	receipt, err := in.Wallet.WaitForReceipt(ctx, txHash, in.RequiredConfirmations)
	if err != nil {
		return legOutcome{txHash: txHash, err: fmt.Errorf("await receipt for %s: %w", txHash, err)}
	}

	return legOutcome{txHash: txHash, success: receipt.Success, blockNumber: receipt.BlockNumber}
}
