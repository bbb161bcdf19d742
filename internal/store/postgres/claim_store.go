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

// ClaimStore implements domain.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new ClaimStore backed by the given connection pool.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Upsert writes the absolute claim balance for (token, recipient).
func (s *ClaimStore) Upsert(ctx context.Context, claim domain.FeeClaim) error {
	const query = `
		INSERT INTO fee_claims (collateral_token, recipient, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collateral_token, recipient) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		addrStr(claim.CollateralToken), addrStr(claim.Recipient), numStr(claim.Amount))
	if err != nil {
		return fmt.Errorf("postgres: upsert fee claim %s/%s: %w", claim.CollateralToken, claim.Recipient, err)
	}
	return nil
}

// Get retrieves one claim balance. A missing row is a zero balance.
func (s *ClaimStore) Get(ctx context.Context, token common.Address, recipient common.Address) (domain.FeeClaim, error) {
	claim := domain.FeeClaim{CollateralToken: token, Recipient: recipient, Amount: new(big.Int)}

	var amount string
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM fee_claims WHERE collateral_token = $1 AND recipient = $2`,
		addrStr(token), addrStr(recipient),
	).Scan(&amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return claim, nil
		}
		return domain.FeeClaim{}, fmt.Errorf("postgres: get fee claim %s/%s: %w", token, recipient, err)
	}

	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return domain.FeeClaim{}, fmt.Errorf("postgres: fee claim %s/%s: bad numeric %q", token, recipient, amount)
	}
	claim.Amount = v
	return claim, nil
}

// ListAll returns every claim balance, for state rehydration on boot.
func (s *ClaimStore) ListAll(ctx context.Context) ([]domain.FeeClaim, error) {
	rows, err := s.pool.Query(ctx, `SELECT collateral_token, recipient, amount FROM fee_claims`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.FeeClaim
	for rows.Next() {
		var token, recipient, amount string
		if err := rows.Scan(&token, &recipient, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan fee claim: %w", err)
		}
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: fee claim %s/%s: bad numeric %q", token, recipient, amount)
		}
		claims = append(claims, domain.FeeClaim{
			CollateralToken: common.HexToAddress(token),
			Recipient:       common.HexToAddress(recipient),
			Amount:          v,
		})
	}
	return claims, rows.Err()
}
