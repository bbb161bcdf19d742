package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// staticallyInvalid reports whether an offer's own parameters contradict
// each other, independent of any fill or cancel state. Static validity is
// checked before everything else, so a cancelled-but-invalid offer reads as
// Invalid, not Cancelled.
func staticallyInvalid(offer domain.Offer) bool {
	if fp.IsZero(offer.TakerAmount) {
		return true
	}
	switch offer.Kind {
	case domain.OfferKindCreate:
		t := offer.Terms
		if t == nil {
			return true
		}
		if t.Floor.Cmp(t.Inflection) > 0 || t.Inflection.Cmp(t.Cap) > 0 {
			return true
		}
		if t.Gradient.Sign() < 0 || t.Gradient.Cmp(fp.Scale) > 0 {
			return true
		}
		if t.CollateralToken == (common.Address{}) || t.DataProvider == (common.Address{}) {
			return true
		}
		return false
	case domain.OfferKindAdd, domain.OfferKindRemove:
		return offer.PoolID == (common.Hash{})
	default:
		return true
	}
}

// offerStatus derives the lifecycle status of an offer from its static
// parameters, its fill record, and the clock. Precedence is fixed:
// Invalid > Cancelled > Expired > Filled > Fillable.
func (e *Engine) offerStatus(offer domain.Offer, typedOfferHash common.Hash, now int64) domain.OfferStatus {
	if staticallyInvalid(offer) {
		return domain.OfferStatusInvalid
	}
	rec := e.st.FillRecord(typedOfferHash)
	if rec.Cancelled {
		return domain.OfferStatusCancelled
	}
	if now > offer.OfferExpiry {
		return domain.OfferStatusExpired
	}
	if rec.FilledAmount().Cmp(offer.TakerAmount) >= 0 {
		return domain.OfferStatusFilled
	}
	return domain.OfferStatusFillable
}

// actualTakerFillable computes how much of the offer a taker could fill
// right now given the maker's current external balances. Maker balances and
// allowances can change between off-chain signing and filling; the protocol
// clamps to what is currently honorable instead of rejecting.
func (e *Engine) actualTakerFillable(offer domain.Offer, typedOfferHash common.Hash) (amount *big.Int, poolExists bool) {
	remaining := e.st.FillRecord(typedOfferHash).Remaining(offer.TakerAmount)

	switch offer.Kind {
	case domain.OfferKindRemove:
		pool := e.st.Pool(offer.PoolID)
		if pool == nil {
			return fp.Zero(), false
		}
		// The maker burns position tokens, which needs no allowance; their
		// current balance of their side is the whole maker-side capacity.
		makerToken := pool.ShortToken
		if offer.MakerIsLong {
			makerToken = pool.LongToken
		}
		return fp.Min(remaining, e.ledger.PositionBalance(makerToken, offer.Maker)), true

	case domain.OfferKindAdd:
		pool := e.st.Pool(offer.PoolID)
		if pool == nil {
			return fp.Zero(), false
		}
		return e.makerConstrainedFillable(offer, remaining, pool.CollateralToken), true

	default: // create
		return e.makerConstrainedFillable(offer, remaining, offer.Terms.CollateralToken), true
	}
}

// makerConstrainedFillable clamps remaining by the maker's spendable
// collateral, rescaled to taker units. With a zero maker contribution the
// maker side imposes no constraint.
func (e *Engine) makerConstrainedFillable(offer domain.Offer, remaining *big.Int, collateral common.Address) *big.Int {
	if fp.IsZero(offer.MakerCollateralAmount) {
		return remaining
	}
	spendable := fp.Min(
		e.ledger.BalanceOf(collateral, offer.Maker),
		e.ledger.Allowance(collateral, offer.Maker, domain.EscrowAccount),
	)
	capacity := fp.MulDiv(spendable, offer.TakerAmount, offer.MakerCollateralAmount)
	return fp.Min(remaining, capacity)
}

// OfferRelevantState derives everything a taker wants to know before
// filling: typed hash, status, cumulative filled amount, the currently
// fillable amount, signature validity, and (for liquidity offers) whether
// the referenced pool exists. It never fails on a wrong signer; validity is
// reported as a boolean so read paths don't abort.
func (e *Engine) OfferRelevantState(offer domain.Offer, sig domain.Signature) domain.OfferRelevantState {
	e.mu.Lock()
	defer e.mu.Unlock()

	hash := e.eip712.TypedOfferHash(offer)

	sigValid := false
	if signer, err := crypto.RecoverSigner(hash, sig); err == nil {
		sigValid = signer == offer.Maker
	}

	status := e.offerStatus(offer, hash, e.now())
	fillable, poolExists := fp.Zero(), false
	if status != domain.OfferStatusInvalid {
		fillable, poolExists = e.actualTakerFillable(offer, hash)
		if status != domain.OfferStatusFillable {
			fillable = fp.Zero()
		}
	}

	return domain.OfferRelevantState{
		TypedOfferHash:            hash,
		Status:                    status,
		TakerFilledAmount:         e.st.FillRecord(hash).FilledAmount(),
		ActualTakerFillableAmount: fillable,
		IsSignatureValid:          sigValid,
		PoolExists:                poolExists,
	}
}
