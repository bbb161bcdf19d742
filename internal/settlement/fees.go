package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// confirm performs the one and only transition into Confirmed: it fixes the
// final reference value, computes per-token payout rates net of fees, and
// credits the fee claims. Every confirmation path (direct, fallback,
// timeout, lazy) funnels through here so allocation happens exactly once.
//
// settlementFeeRecipient is whichever party actually triggered confirmation
// under the provider rules: the data provider, the fallback provider, or the
// treasury when an unauthenticated timeout call forced the inflection value.
func confirm(env Env, pool *domain.Pool, finalValue *big.Int, confirmedBy common.Address, settlementFeeRecipient common.Address) []domain.Event {
	fees := env.fees(pool)
	balance := fp.Clone(pool.CollateralBalance)

	protocolFeeAmt := fp.Mul(balance, fees.ProtocolFee)
	settlementFeeAmt := fp.Mul(balance, fees.SettlementFee)

	// Long and short supplies both equal the collateral balance by
	// construction, so the net-of-fee rate per token reduces to
	// g * (1 - feeRates) without dividing by supply.
	feeRates := new(big.Int).Add(fees.ProtocolFee, fees.SettlementFee)
	netRate := new(big.Int).Sub(fp.Scale, feeRates)

	long := LongPayoffFraction(pool.Floor, pool.Inflection, pool.Cap, pool.Gradient, finalValue)
	pool.PayoutLong = fp.Mul(long, netRate)
	pool.PayoutShort = fp.Mul(ShortPayoffFraction(long), netRate)

	pool.StatusFinalReferenceValue = domain.PoolStatusConfirmed
	pool.StatusTimestamp = env.Now
	pool.FinalReferenceValue = fp.Clone(finalValue)

	treasury := env.Gov.TreasuryAt(env.Now)
	env.State.AddClaim(pool.CollateralToken, treasury, protocolFeeAmt)
	env.State.AddClaim(pool.CollateralToken, settlementFeeRecipient, settlementFeeAmt)

	// Fees leave the pool immediately; the remaining balance backs the
	// redemption payouts.
	pool.CollateralBalance.Sub(pool.CollateralBalance, protocolFeeAmt)
	pool.CollateralBalance.Sub(pool.CollateralBalance, settlementFeeAmt)

	evs := []domain.Event{
		{
			Type: domain.EventStatusChanged,
			StatusChanged: &domain.StatusChangedEvent{
				PoolID:        pool.ID,
				Status:        domain.PoolStatusConfirmed,
				By:            confirmedBy,
				ProposedValue: fp.Clone(finalValue),
			},
		},
	}
	if protocolFeeAmt.Sign() > 0 {
		evs = append(evs, domain.Event{
			Type: domain.EventFeeClaimAllocated,
			FeeClaimAllocated: &domain.FeeClaimAllocatedEvent{
				PoolID:          pool.ID,
				CollateralToken: pool.CollateralToken,
				Recipient:       treasury,
				Amount:          protocolFeeAmt,
			},
		})
	}
	if settlementFeeAmt.Sign() > 0 {
		evs = append(evs, domain.Event{
			Type: domain.EventFeeClaimAllocated,
			FeeClaimAllocated: &domain.FeeClaimAllocatedEvent{
				PoolID:          pool.ID,
				CollateralToken: pool.CollateralToken,
				Recipient:       settlementFeeRecipient,
				Amount:          settlementFeeAmt,
			},
		})
	}
	return evs
}

// AllocateRemovalFees charges protocol and settlement fees on collateral
// released by a remove-liquidity fill, before the pool has settled. The
// settlement fee is reserved for the pool's data provider.
func AllocateRemovalFees(env Env, pool *domain.Pool, released *big.Int) (feeTotal *big.Int, evs []domain.Event) {
	fees := env.fees(pool)
	protocolFeeAmt := fp.Mul(released, fees.ProtocolFee)
	settlementFeeAmt := fp.Mul(released, fees.SettlementFee)

	treasury := env.Gov.TreasuryAt(env.Now)
	env.State.AddClaim(pool.CollateralToken, treasury, protocolFeeAmt)
	env.State.AddClaim(pool.CollateralToken, pool.DataProvider, settlementFeeAmt)

	if protocolFeeAmt.Sign() > 0 {
		evs = append(evs, domain.Event{
			Type: domain.EventFeeClaimAllocated,
			FeeClaimAllocated: &domain.FeeClaimAllocatedEvent{
				PoolID:          pool.ID,
				CollateralToken: pool.CollateralToken,
				Recipient:       treasury,
				Amount:          protocolFeeAmt,
			},
		})
	}
	if settlementFeeAmt.Sign() > 0 {
		evs = append(evs, domain.Event{
			Type: domain.EventFeeClaimAllocated,
			FeeClaimAllocated: &domain.FeeClaimAllocatedEvent{
				PoolID:          pool.ID,
				CollateralToken: pool.CollateralToken,
				Recipient:       pool.DataProvider,
				Amount:          settlementFeeAmt,
			},
		})
	}
	return new(big.Int).Add(protocolFeeAmt, settlementFeeAmt), evs
}
