package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// Redeem burns amount of a position token held by caller and pays out
// amount * payoutPerToken of collateral. It lazily confirms the pool first,
// so the very first redemption after a timed-out challenge or review window
// is what fixes the payout rates. amount = 0 is a valid no-op that still
// performs the lazy confirmation.
func Redeem(env Env, caller common.Address, tokenID common.Hash, amount *big.Int) ([]domain.Event, error) {
	tok, ok := env.State.PositionTokens[tokenID]
	if !ok {
		return nil, domain.ErrInvalidPositionToken
	}
	pool := env.State.Pool(tok.PoolID)
	if pool == nil {
		return nil, domain.ErrInvalidPositionToken
	}

	if until := env.Gov.ReturnCollateralPausedUntil(); until >= env.Now {
		return nil, domain.ErrReturnCollateralPaused
	}

	evs, err := EnsureSettled(env, pool)
	if err != nil {
		return nil, err
	}

	if amount.Sign() == 0 {
		return evs, nil
	}

	if err := env.Ledger.BurnPosition(tokenID, caller, amount); err != nil {
		return nil, err
	}

	rate := pool.PayoutShort
	if tok.IsLong {
		rate = pool.PayoutLong
	}
	returned := fp.Mul(amount, rate)

	pool.CollateralBalance.Sub(pool.CollateralBalance, returned)
	if err := env.Ledger.Transfer(pool.CollateralToken, domain.EscrowAccount, caller, returned); err != nil {
		return nil, err
	}

	evs = append(evs, domain.Event{
		Type: domain.EventPositionTokenRedeemed,
		PositionTokenRedeemed: &domain.PositionTokenRedeemedEvent{
			PoolID:             pool.ID,
			PositionToken:      tokenID,
			AmountRedeemed:     fp.Clone(amount),
			CollateralReturned: returned,
			ReturnedTo:         caller,
		},
	})
	return evs, nil
}
