package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Upsert writes the fill record for a typed offer hash.
func (s *FillStore) Upsert(ctx context.Context, typedOfferHash common.Hash, rec domain.FillRecord) error {
	const query = `
		INSERT INTO fill_records (typed_offer_hash, cancelled, filled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (typed_offer_hash) DO UPDATE SET
			cancelled = EXCLUDED.cancelled,
			filled = EXCLUDED.filled,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, hashStr(typedOfferHash), rec.Cancelled, numStr(rec.FilledAmount()))
	if err != nil {
		return fmt.Errorf("postgres: upsert fill record %s: %w", typedOfferHash, err)
	}
	return nil
}

// Get retrieves the record for a typed offer hash. A missing row is a fresh
// record, not an error.
func (s *FillStore) Get(ctx context.Context, typedOfferHash common.Hash) (domain.FillRecord, error) {
	var cancelled bool
	var filled string
	err := s.pool.QueryRow(ctx,
		`SELECT cancelled, filled FROM fill_records WHERE typed_offer_hash = $1`,
		hashStr(typedOfferHash),
	).Scan(&cancelled, &filled)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.NewFillRecord(), nil
		}
		return domain.FillRecord{}, fmt.Errorf("postgres: get fill record %s: %w", typedOfferHash, err)
	}

	v, ok := new(big.Int).SetString(filled, 10)
	if !ok {
		return domain.FillRecord{}, fmt.Errorf("postgres: fill record %s: bad numeric %q", typedOfferHash, filled)
	}
	return domain.FillRecord{Cancelled: cancelled, Filled: v}, nil
}

// ListAll returns every fill record keyed by typed offer hash, for state
// rehydration on boot.
func (s *FillStore) ListAll(ctx context.Context) (map[common.Hash]domain.FillRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT typed_offer_hash, cancelled, filled FROM fill_records`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fill records: %w", err)
	}
	defer rows.Close()

	out := make(map[common.Hash]domain.FillRecord)
	for rows.Next() {
		var hash, filled string
		var cancelled bool
		if err := rows.Scan(&hash, &cancelled, &filled); err != nil {
			return nil, fmt.Errorf("postgres: scan fill record: %w", err)
		}
		v, ok := new(big.Int).SetString(filled, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: fill record %s: bad numeric %q", hash, filled)
		}
		out[common.HexToHash(hash)] = domain.FillRecord{Cancelled: cancelled, Filled: v}
	}
	return out, rows.Err()
}
