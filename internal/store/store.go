// Package store persists TransactionRecords for the Settler and Confirmer
// (spec.md §4.6.1). TransactionStore is the seam; MemoryStore and
// PostgresStore are the two concrete backends.
package store

import (
	"context"
	"sort"
	"sync"

	domain "github.com/evmx402/facilitator/internal/types"
)

// TransactionStore is the persistence interface shared by the Settler
// (writes on broadcast, updates on terminal outcome) and the Confirmer
// (reads non-terminal records, updates confirmation counts).
type TransactionStore interface {
	Create(ctx context.Context, record domain.TransactionRecord) error
	Update(ctx context.Context, record domain.TransactionRecord) error
	Get(ctx context.Context, id string) (domain.TransactionRecord, error)
	ListNonTerminal(ctx context.Context, limit int) ([]domain.TransactionRecord, error)
}

// MemoryStore is an in-memory, mutex-guarded TransactionStore. It is the
// facilitator's default store: spec.md treats an unconfigured store as
// "testing mode" in which the Confirmer sweep is a no-op, but that no-op
// path only applies when no store at all is wired (nil TransactionStore
// passed to the Confirmer). Bootstrapping always wires a MemoryStore when
// TX_STORE_DSN is unset, so normal operation never hits that no-op path.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.TransactionRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.TransactionRecord)}
}

func (m *MemoryStore) Create(ctx context.Context, record domain.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, record domain.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (domain.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return domain.TransactionRecord{}, domain.NewNotSupported("transaction", id)
	}
	return r, nil
}

func (m *MemoryStore) ListNonTerminal(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id, r := range m.records {
		if !r.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids) // deterministic sweep order

	out := make([]domain.TransactionRecord, 0, limit)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		out = append(out, m.records[id])
	}
	return out, nil
}
