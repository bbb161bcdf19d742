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

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Upsert writes the full pool snapshot, replacing any previous row.
func (s *PoolStore) Upsert(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (
			id, reference_asset, expiry_time, floor, inflection, cap, gradient,
			collateral_token, data_provider, capacity, permission_token,
			collateral_balance, long_token, short_token,
			index_fees, index_settlement_periods,
			status_final_reference_value, status_timestamp,
			final_reference_value, final_value_submitter,
			payout_long, payout_short, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16,
			$17, $18,
			$19, $20,
			$21, $22, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			collateral_balance = EXCLUDED.collateral_balance,
			status_final_reference_value = EXCLUDED.status_final_reference_value,
			status_timestamp = EXCLUDED.status_timestamp,
			final_reference_value = EXCLUDED.final_reference_value,
			final_value_submitter = EXCLUDED.final_value_submitter,
			payout_long = EXCLUDED.payout_long,
			payout_short = EXCLUDED.payout_short,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		hashStr(p.ID), p.ReferenceAsset, p.ExpiryTime,
		numStr(p.Floor), numStr(p.Inflection), numStr(p.Cap), numStr(p.Gradient),
		addrStr(p.CollateralToken), addrStr(p.DataProvider), numStr(p.Capacity), addrStr(p.PermissionToken),
		numStr(p.CollateralBalance), hashStr(p.LongToken), hashStr(p.ShortToken),
		p.IndexFees, p.IndexSettlementPeriods,
		string(p.StatusFinalReferenceValue), p.StatusTimestamp,
		numStr(p.FinalReferenceValue), addrStr(p.FinalValueSubmitter),
		numStr(p.PayoutLong), numStr(p.PayoutShort),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %s: %w", p.ID, err)
	}
	return nil
}

const poolSelectCols = `id, reference_asset, expiry_time, floor, inflection, cap, gradient,
	collateral_token, data_provider, capacity, permission_token,
	collateral_balance, long_token, short_token,
	index_fees, index_settlement_periods,
	status_final_reference_value, status_timestamp,
	final_reference_value, final_value_submitter, payout_long, payout_short`

func scanPoolFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Pool, error) {
	var p domain.Pool
	var id, collateralToken, dataProvider, permissionToken, longToken, shortToken, status string
	var finalSubmitter string
	var floor, inflection, cap, gradient, capacity, balance, finalValue, payoutLong, payoutShort string

	err := scanner.Scan(
		&id, &p.ReferenceAsset, &p.ExpiryTime, &floor, &inflection, &cap, &gradient,
		&collateralToken, &dataProvider, &capacity, &permissionToken,
		&balance, &longToken, &shortToken,
		&p.IndexFees, &p.IndexSettlementPeriods,
		&status, &p.StatusTimestamp,
		&finalValue, &finalSubmitter, &payoutLong, &payoutShort,
	)
	if err != nil {
		return domain.Pool{}, err
	}

	p.ID = common.HexToHash(id)
	p.CollateralToken = common.HexToAddress(collateralToken)
	p.DataProvider = common.HexToAddress(dataProvider)
	p.PermissionToken = common.HexToAddress(permissionToken)
	p.LongToken = common.HexToHash(longToken)
	p.ShortToken = common.HexToHash(shortToken)
	p.StatusFinalReferenceValue = domain.PoolStatus(status)
	p.FinalValueSubmitter = common.HexToAddress(finalSubmitter)

	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&p.Floor, floor}, {&p.Inflection, inflection}, {&p.Cap, cap},
		{&p.Gradient, gradient}, {&p.Capacity, capacity},
		{&p.CollateralBalance, balance}, {&p.FinalReferenceValue, finalValue},
		{&p.PayoutLong, payoutLong}, {&p.PayoutShort, payoutShort},
	} {
		v, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return domain.Pool{}, fmt.Errorf("bad numeric %q", f.src)
		}
		*f.dst = v
	}
	return p, nil
}

func scanPoolRows(rows pgx.Rows) ([]domain.Pool, error) {
	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPoolFromRow(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// GetByID retrieves a single pool by id.
func (s *PoolStore) GetByID(ctx context.Context, id common.Hash) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM pools WHERE id = $1`, hashStr(id))

	p, err := scanPoolFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Pool{}, domain.ErrPoolNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %s: %w", id, err)
	}
	return p, nil
}

// ListAll returns every pool snapshot, for state rehydration on boot.
func (s *PoolStore) ListAll(ctx context.Context) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolSelectCols+` FROM pools ORDER BY expiry_time`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	pools, err := scanPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pools: %w", err)
	}
	return pools, nil
}

// ListUnconfirmedExpired returns expired pools still awaiting confirmation,
// the sweeper's work queue after a restart.
func (s *PoolStore) ListUnconfirmedExpired(ctx context.Context, now int64) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolSelectCols+` FROM pools
		 WHERE expiry_time <= $1 AND status_final_reference_value != $2
		 ORDER BY expiry_time`, now, string(domain.PoolStatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("postgres: list unconfirmed expired pools: %w", err)
	}
	defer rows.Close()

	pools, err := scanPoolRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unconfirmed expired pools: %w", err)
	}
	return pools, nil
}

// ---------------------------------------------------------------------------
// Encoding helpers shared by the stores.
// ---------------------------------------------------------------------------

func hashStr(h common.Hash) string { return h.Hex() }

func addrStr(a common.Address) string { return a.Hex() }

func numStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
