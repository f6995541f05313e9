package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/evmx402/facilitator/internal/types"
)

// PostgresStore persists TransactionRecords in a single `transactions`
// table (spec.md §6), selected when TX_STORE_DSN is set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore dials dsn and verifies connectivity with a ping.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to transaction store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping transaction store: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS transactions (
	id             TEXT PRIMARY KEY,
	tx_hash        TEXT NOT NULL,
	tx_hash_fee    TEXT NOT NULL DEFAULT '',
	chain          TEXT NOT NULL,
	status         TEXT NOT NULL,
	confirmations  BIGINT NOT NULL DEFAULT 0,
	confirmed_at   BIGINT,
	block_number   BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status);
`

// Migrate creates the transactions table and its status index if absent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createTableSQL)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, record domain.TransactionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, tx_hash, tx_hash_fee, chain, status, confirmations, confirmed_at, block_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash,
			tx_hash_fee = EXCLUDED.tx_hash_fee,
			status = EXCLUDED.status,
			confirmations = EXCLUDED.confirmations,
			confirmed_at = EXCLUDED.confirmed_at,
			block_number = EXCLUDED.block_number
	`, record.ID, record.TxHash, record.TxHashFee, record.Chain, string(record.Status), record.Confirmations, record.ConfirmedAt, record.BlockNumber)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, record domain.TransactionRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE transactions SET
			tx_hash = $2, tx_hash_fee = $3, status = $4, confirmations = $5, confirmed_at = $6, block_number = $7
		WHERE id = $1
	`, record.ID, record.TxHash, record.TxHashFee, string(record.Status), record.Confirmations, record.ConfirmedAt, record.BlockNumber)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.TransactionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tx_hash, tx_hash_fee, chain, status, confirmations, confirmed_at, block_number
		FROM transactions WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (s *PostgresStore) ListNonTerminal(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tx_hash, tx_hash_fee, chain, status, confirmations, confirmed_at, block_number
		FROM transactions WHERE status IN ('pending', 'partial_settlement')
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord
	var status string
	var confirmedAt *int64
	if err := row.Scan(&r.ID, &r.TxHash, &r.TxHashFee, &r.Chain, &status, &r.Confirmations, &confirmedAt, &r.BlockNumber); err != nil {
		if err == pgx.ErrNoRows {
			return domain.TransactionRecord{}, domain.NewNotSupported("transaction", "")
		}
		return domain.TransactionRecord{}, err
	}
	r.Status = domain.TxStatus(status)
	r.ConfirmedAt = confirmedAt
	return r, nil
}
