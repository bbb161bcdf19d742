package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
	"github.com/divaprotocol/diva-engine/internal/settlement"
)

// FillRequest is one offer fill instruction.
type FillRequest struct {
	Offer           domain.Offer
	Signature       domain.Signature
	TakerFillAmount *big.Int
}

// FillOffer executes a single fill as the given caller.
func (e *Engine) FillOffer(caller common.Address, req FillRequest) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		return e.fill(caller, req, now)
	})
}

// FillOfferBatch executes the fills as one unit: either every element
// applies or none does.
func (e *Engine) FillOfferBatch(caller common.Address, reqs []FillRequest) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		var all []domain.Event
		for _, req := range reqs {
			evs, err := e.fill(caller, req, now)
			if err != nil {
				return nil, err
			}
			all = append(all, evs...)
		}
		return all, nil
	})
}

// fill validates and applies one fill with the operation lock held. Static
// validity comes first: an offer whose own parameters contradict each other
// (nil terms, floor above cap) is rejected before any hashing or signature
// work touches it.
func (e *Engine) fill(caller common.Address, req FillRequest, now int64) ([]domain.Event, error) {
	offer := req.Offer
	if staticallyInvalid(offer) {
		return nil, domain.ErrOfferInvalidCancelledFilledOrExpired
	}
	hash := e.eip712.TypedOfferHash(offer)

	signer, err := crypto.RecoverSigner(hash, req.Signature)
	if err != nil {
		return nil, err
	}
	if signer != offer.Maker {
		return nil, domain.ErrInvalidSignature
	}

	if offer.Taker != (common.Address{}) && caller != offer.Taker {
		return nil, domain.ErrUnauthorizedTaker
	}

	if e.offerStatus(offer, hash, now) != domain.OfferStatusFillable {
		return nil, domain.ErrOfferInvalidCancelledFilledOrExpired
	}

	rec := e.st.FillRecord(hash)
	remaining := rec.Remaining(offer.TakerAmount)
	if req.TakerFillAmount.Cmp(remaining) > 0 {
		return nil, domain.ErrTakerFillAmountExceedsFillable
	}
	// The minimum only binds while more than the minimum remains; the final
	// sliver of an almost-filled offer may be smaller.
	if req.TakerFillAmount.Cmp(fp.Min(offer.MinimumTakerFillAmount, remaining)) < 0 {
		return nil, domain.ErrTakerFillAmountSmallerMinimum
	}

	// Integer division rounds the maker contribution down, in the
	// protocol's favor.
	makerFillAmount := fp.MulDiv(req.TakerFillAmount, offer.MakerCollateralAmount, offer.TakerAmount)

	rec.Filled = new(big.Int).Add(rec.FilledAmount(), req.TakerFillAmount)
	e.st.SetFillRecord(hash, rec)

	var evs []domain.Event
	switch offer.Kind {
	case domain.OfferKindCreate:
		evs, err = e.fillCreate(caller, offer, hash, makerFillAmount, req.TakerFillAmount, now)
	case domain.OfferKindAdd:
		evs, err = e.fillAdd(caller, offer, makerFillAmount, req.TakerFillAmount, now)
	case domain.OfferKindRemove:
		evs, err = e.fillRemove(caller, offer, makerFillAmount, req.TakerFillAmount, now)
	}
	if err != nil {
		return nil, err
	}

	poolID := offer.PoolID
	if offer.Kind == domain.OfferKindCreate {
		poolID = hash
	}
	evs = append(evs, domain.Event{
		Type: domain.EventOfferFilled,
		OfferFilled: &domain.OfferFilledEvent{
			TypedOfferHash:    hash,
			PoolID:            poolID,
			Maker:             offer.Maker,
			Taker:             caller,
			TakerFilledAmount: fp.Clone(rec.Filled),
		},
	})
	return evs, nil
}

// fillCreate instantiates the pool on the first fill (pool id = typed offer
// hash) and adds liquidity to it on that and every subsequent fill.
func (e *Engine) fillCreate(caller common.Address, offer domain.Offer, hash common.Hash, makerFill, takerFill *big.Int, now int64) ([]domain.Event, error) {
	var evs []domain.Event

	pool := e.st.Pool(hash)
	if pool == nil {
		t := offer.Terms
		if t.ExpiryTime <= now {
			return nil, domain.ErrPoolExpired
		}
		pool = &domain.Pool{
			ID:                        hash,
			ReferenceAsset:            t.ReferenceAsset,
			ExpiryTime:                t.ExpiryTime,
			Floor:                     fp.Clone(t.Floor),
			Inflection:                fp.Clone(t.Inflection),
			Cap:                       fp.Clone(t.Cap),
			Gradient:                  fp.Clone(t.Gradient),
			CollateralToken:           t.CollateralToken,
			DataProvider:              t.DataProvider,
			Capacity:                  fp.Clone(t.Capacity),
			PermissionToken:           t.PermissionToken,
			CollateralBalance:         fp.Zero(),
			LongToken:                 domain.LongTokenID(hash),
			ShortToken:                domain.ShortTokenID(hash),
			IndexFees:                 e.gov.CurrentFeesIndex(),
			IndexSettlementPeriods:    e.gov.CurrentSettlementPeriodsIndex(),
			StatusFinalReferenceValue: domain.PoolStatusOpen,
			StatusTimestamp:           now,
			FinalReferenceValue:       fp.Zero(),
			PayoutLong:                fp.Zero(),
			PayoutShort:               fp.Zero(),
		}
		e.st.PutPool(pool)
		evs = append(evs, domain.Event{
			Type: domain.EventPoolIssued,
			PoolIssued: &domain.PoolIssuedEvent{
				PoolID:          pool.ID,
				Maker:           offer.Maker,
				Taker:           caller,
				CollateralToken: pool.CollateralToken,
			},
		})
	}

	if err := e.deposit(pool, offer.Maker, caller, offer.MakerIsLong, makerFill, takerFill); err != nil {
		return nil, err
	}
	return evs, nil
}

func (e *Engine) fillAdd(caller common.Address, offer domain.Offer, makerFill, takerFill *big.Int, now int64) ([]domain.Event, error) {
	pool := e.st.Pool(offer.PoolID)
	if pool == nil {
		return nil, domain.ErrPoolNotFound
	}
	if pool.Expired(now) {
		return nil, domain.ErrPoolExpired
	}
	if err := e.deposit(pool, offer.Maker, caller, offer.MakerIsLong, makerFill, takerFill); err != nil {
		return nil, err
	}
	return nil, nil
}

// deposit moves both sides' collateral into escrow and mints matched long
// and short supply. The maker side needs a standing allowance toward the
// escrow account; the taker initiated this call, so their own transfer is
// self-authorized.
func (e *Engine) deposit(pool *domain.Pool, maker, taker common.Address, makerIsLong bool, makerFill, takerFill *big.Int) error {
	collateral := pool.CollateralToken
	if err := e.ledger.TransferFrom(collateral, domain.EscrowAccount, maker, domain.EscrowAccount, makerFill); err != nil {
		return err
	}
	if err := e.ledger.TransferFrom(collateral, taker, taker, domain.EscrowAccount, takerFill); err != nil {
		return err
	}

	poolFill := new(big.Int).Add(makerFill, takerFill)
	pool.CollateralBalance.Add(pool.CollateralBalance, poolFill)

	longTo, shortTo := taker, maker
	if makerIsLong {
		longTo, shortTo = maker, taker
	}
	e.ledger.MintPosition(pool.LongToken, longTo, poolFill)
	e.ledger.MintPosition(pool.ShortToken, shortTo, poolFill)
	return nil
}

// fillRemove burns matched long and short supply and returns the released
// collateral net of fees: the maker receives their offered rate, the taker
// the remainder.
func (e *Engine) fillRemove(caller common.Address, offer domain.Offer, makerFill, takerFill *big.Int, now int64) ([]domain.Event, error) {
	pool := e.st.Pool(offer.PoolID)
	if pool == nil {
		return nil, domain.ErrPoolNotFound
	}
	if pool.StatusFinalReferenceValue != domain.PoolStatusOpen {
		return nil, domain.ErrAlreadySubmittedOrConfirmed
	}
	if until := e.gov.ReturnCollateralPausedUntil(); until >= now {
		return nil, domain.ErrReturnCollateralPaused
	}

	makerToken, takerToken := pool.LongToken, pool.ShortToken
	if !offer.MakerIsLong {
		makerToken, takerToken = pool.ShortToken, pool.LongToken
	}
	if err := e.ledger.BurnPosition(makerToken, offer.Maker, takerFill); err != nil {
		return nil, err
	}
	if err := e.ledger.BurnPosition(takerToken, caller, takerFill); err != nil {
		return nil, err
	}

	// One long plus one short backs exactly one collateral unit.
	released := fp.Clone(takerFill)
	pool.CollateralBalance.Sub(pool.CollateralBalance, released)

	env := settlement.Env{State: e.st, Ledger: e.ledger, Gov: e.gov, Now: now}
	feeTotal, evs := settlement.AllocateRemovalFees(env, pool, released)

	takerPayout := new(big.Int).Sub(released, feeTotal)
	takerPayout.Sub(takerPayout, makerFill)
	if takerPayout.Sign() < 0 {
		return nil, domain.ErrOfferInvalidCancelledFilledOrExpired
	}

	if err := e.ledger.Transfer(pool.CollateralToken, domain.EscrowAccount, offer.Maker, makerFill); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.CollateralToken, domain.EscrowAccount, caller, takerPayout); err != nil {
		return nil, err
	}
	return evs, nil
}
