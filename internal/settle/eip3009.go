package settle

import (
	"context"
	"fmt"

	domain "github.com/evmx402/facilitator/internal/types"
)

// eip3009Strategy submits a single transferWithAuthorization using the
// authorization's exact signed value (spec.md §4.5.1). It never rewrites
// auth.Value: the EIP-712 signature is computed over that exact amount, so
// substituting netAmount would invalidate the signature on-chain.
type eip3009Strategy struct{}

func (eip3009Strategy) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	txHash, err := in.Wallet.TransferWithAuthorization(ctx, in.TokenAddress, in.Auth)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("transferWithAuthorization: %w", err)
	}

	receipt, err := in.Wallet.WaitForReceipt(ctx, txHash, in.RequiredConfirmations)
	if err != nil {
		// The receipt wait was cancelled or timed out; the transaction was
		// already broadcast and is not rolled back. Leave the record
		// pending for the Confirmer to finish tracking.
		return SubmitResult{TxHash: txHash, Status: domain.TxPending}, nil
	}

	status := domain.TxFailed
	if receipt.Success {
		status = domain.TxConfirmed
	}
	return SubmitResult{TxHash: txHash, Status: status, BlockNumber: receipt.BlockNumber}, nil
}
