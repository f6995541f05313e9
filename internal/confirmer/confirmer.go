// Package confirmer implements the Finality Confirmer (spec.md §4.6): a
// background sweep over non-terminal TransactionRecords that advances
// confirmation counts and terminal status, started once at process boot
// and drained on shutdown.
package confirmer

import (
	"context"
	"log"
	"time"

	"github.com/evmx402/facilitator/internal/registry"
	"github.com/evmx402/facilitator/internal/store"
	domain "github.com/evmx402/facilitator/internal/types"
)

const (
	sweepInterval = 30 * time.Second
	sweepLimit    = 50
)

// ChainLookup resolves the public client and required confirmation depth
// for a TransactionRecord's chain slug.
type ChainLookup interface {
	PublicClientFor(network string) (registry.PublicClient, error)
	ConfirmationsOf(network string) (uint64, error)
}

// Confirmer runs the periodic sweep. A nil store is the spec's "testing
// mode": Run becomes a no-op instead of panicking on first tick.
type Confirmer struct {
	store   store.TransactionStore
	chains  ChainLookup
	now     func() int64
	onTick  func(swept int) // test hook, nil in production
}

// New constructs a Confirmer. store may be nil to run in no-op mode.
func New(txStore store.TransactionStore, chains ChainLookup) *Confirmer {
	return &Confirmer{store: txStore, chains: chains, now: func() int64 { return time.Now().Unix() }}
}

// Run blocks, sweeping once immediately and then every 30 seconds, until
// ctx is cancelled. It never panics on a single record's failure: sweep
// errors are logged and the sweep continues.
func (c *Confirmer) Run(ctx context.Context) {
	if c.store == nil {
		log.Printf("confirmer: no transaction store configured, running as no-op")
		<-ctx.Done()
		return
	}

	c.sweepOnce(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Confirmer) sweepOnce(ctx context.Context) {
	records, err := c.store.ListNonTerminal(ctx, sweepLimit)
	if err != nil {
		log.Printf("confirmer: list non-terminal records: %v", err)
		return
	}

	swept := 0
	for _, record := range records {
		if err := c.sweepRecord(ctx, record); err != nil {
			log.Printf("confirmer: sweep record %s: %v", record.ID, err)
			continue
		}
		swept++
	}

	if c.onTick != nil {
		c.onTick(swept)
	}
}

// sweepRecord advances one record. Errors are returned to the caller,
// which logs and moves on to the next record without aborting the sweep.
func (c *Confirmer) sweepRecord(ctx context.Context, record domain.TransactionRecord) error {
	public, err := c.chains.PublicClientFor(record.Chain)
	if err != nil {
		return err
	}
	required, err := c.chains.ConfirmationsOf(record.Chain)
	if err != nil {
		return err
	}

	receipt, err := public.TransactionReceipt(ctx, record.TxHash)
	if err != nil {
		return err
	}
	currentBlock, err := public.BlockNumber(ctx)
	if err != nil {
		return err
	}

	confirmations := uint64(0)
	if currentBlock >= receipt.BlockNumber {
		confirmations = currentBlock - receipt.BlockNumber
	}

	next := record
	next.Confirmations = confirmations
	next.BlockNumber = receipt.BlockNumber

	if confirmations >= required {
		if receipt.Success {
			next.Status = domain.TxConfirmed
		} else {
			next.Status = domain.TxFailed
		}
		now := c.now()
		next.ConfirmedAt = &now
	}

	return c.store.Update(ctx, next)
}
