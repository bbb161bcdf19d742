package engine_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/engine"
	"github.com/divaprotocol/diva-engine/internal/fp"
	"github.com/divaprotocol/diva-engine/internal/governance"
	"github.com/divaprotocol/diva-engine/internal/state"
)

// Deterministic test keys (well-known dev mnemonic accounts).
const (
	makerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	otherKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	takerAddr      = common.HexToAddress("0xAAA0000000000000000000000000000000000AAA")
	dataProvider2  = common.HexToAddress("0xBBB0000000000000000000000000000000000BBB")
	treasuryAddr   = common.HexToAddress("0xCCC0000000000000000000000000000000000CCC")
	fallbackAddr   = common.HexToAddress("0xDDD0000000000000000000000000000000000DDD")
	collateralAddr = common.HexToAddress("0xEEE0000000000000000000000000000000000EEE")
)

func amt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fp.Scale)
}

type harness struct {
	eng    *engine.Engine
	signer *crypto.Signer
	maker  common.Address
	gov    *governance.Registry
	now    int64
	events []domain.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := crypto.NewSigner(makerKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	h := &harness{signer: signer, maker: signer.Address(), now: 1_000_000}
	h.gov = governance.New(governance.Config{
		ProtocolFee:              2_500_000_000_000_000,
		SettlementFee:            500_000_000_000_000,
		SubmissionPeriod:         7 * 24 * 3600,
		ChallengePeriod:          3 * 24 * 3600,
		ReviewPeriod:             5 * 24 * 3600,
		FallbackSubmissionPeriod: 10 * 24 * 3600,
		Treasury:                 treasuryAddr,
		FallbackDataProvider:     fallbackAddr,
	})

	st := state.New()
	h.eng = engine.New(st, state.NewLedger(st), h.gov, testDomain(), engine.Options{
		Now:  func() int64 { return h.now },
		Sink: func(ev domain.Event) { h.events = append(h.events, ev) },
	})

	// Both sides well funded by default; individual tests tighten this.
	h.eng.MintCollateral(collateralAddr, h.maker, amt(1000))
	h.eng.ApproveEscrow(collateralAddr, h.maker, amt(1000))
	h.eng.MintCollateral(collateralAddr, takerAddr, amt(1000))
	return h
}

func testDomain() *crypto.Domain {
	return crypto.NewDomain("DIVA Protocol", "1", 1, common.HexToAddress("0x0000000000000000000000000000000000000d1a"))
}

// createOffer returns a signed create-pool offer: maker contributes 20 per 80
// taker units, maker long, expiring well in the future.
func (h *harness) createOffer(t *testing.T, salt int64) (domain.Offer, domain.Signature) {
	t.Helper()
	offer := domain.Offer{
		Kind:                   domain.OfferKindCreate,
		Maker:                  h.maker,
		MakerCollateralAmount:  amt(20),
		TakerAmount:            amt(80),
		MakerIsLong:            true,
		OfferExpiry:            h.now + 3600,
		MinimumTakerFillAmount: fp.Zero(),
		Salt:                   big.NewInt(salt),
		Terms: &domain.PoolTerms{
			ReferenceAsset:  "BTC/USD",
			ExpiryTime:      h.now + 86400,
			Floor:           amt(40000),
			Inflection:      amt(60000),
			Cap:             amt(80000),
			Gradient:        new(big.Int).Div(fp.Scale, big.NewInt(2)),
			CollateralToken: collateralAddr,
			DataProvider:    dataProvider2,
			Capacity:        fp.Zero(),
		},
	}
	sig, err := h.signer.SignOffer(testDomain(), offer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return offer, sig
}

func (h *harness) sign(t *testing.T, offer domain.Offer) domain.Signature {
	t.Helper()
	sig, err := h.signer.SignOffer(testDomain(), offer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestFillOffer_PartialFillsAccumulate(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 1)
	poolID := h.eng.TypedOfferHash(offer)

	// First fill: 60 of 80. Maker side scales proportionally: 60*20/80 = 15.
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(60)}); err != nil {
		t.Fatalf("fill 60: %v", err)
	}

	pool, err := h.eng.GetPool(poolID)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.CollateralBalance.Cmp(amt(75)) != 0 {
		t.Errorf("pool balance = %s, want 75", pool.CollateralBalance)
	}
	if got := h.eng.PositionBalance(pool.LongToken, h.maker); got.Cmp(amt(75)) != 0 {
		t.Errorf("maker long = %s, want 75", got)
	}
	if got := h.eng.PositionBalance(pool.ShortToken, takerAddr); got.Cmp(amt(75)) != 0 {
		t.Errorf("taker short = %s, want 75", got)
	}
	if got := h.eng.CollateralBalance(collateralAddr, h.maker); got.Cmp(amt(985)) != 0 {
		t.Errorf("maker collateral = %s, want 985", got)
	}

	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.Status != domain.OfferStatusFillable {
		t.Errorf("status = %s, want fillable", rs.Status)
	}
	if rs.TakerFilledAmount.Cmp(amt(60)) != 0 {
		t.Errorf("filled = %s, want 60", rs.TakerFilledAmount)
	}
	if rs.ActualTakerFillableAmount.Cmp(amt(20)) != 0 {
		t.Errorf("fillable = %s, want 20", rs.ActualTakerFillableAmount)
	}

	// Second fill exhausts the offer; same pool receives the liquidity.
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(20)}); err != nil {
		t.Fatalf("fill 20: %v", err)
	}
	pool, _ = h.eng.GetPool(poolID)
	if pool.CollateralBalance.Cmp(amt(100)) != 0 {
		t.Errorf("pool balance = %s, want 100", pool.CollateralBalance)
	}

	rs = h.eng.OfferRelevantState(offer, sig)
	if rs.Status != domain.OfferStatusFilled {
		t.Errorf("status = %s, want filled", rs.Status)
	}
	if rs.ActualTakerFillableAmount.Sign() != 0 {
		t.Errorf("fillable = %s, want 0", rs.ActualTakerFillableAmount)
	}

	// A third fill has nothing left to take.
	err = h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(1)})
	if !errors.Is(err, domain.ErrOfferInvalidCancelledFilledOrExpired) {
		t.Errorf("overfill err = %v", err)
	}

	var poolIssued int
	for _, ev := range h.events {
		if ev.Type == domain.EventPoolIssued {
			poolIssued++
		}
	}
	if poolIssued != 1 {
		t.Errorf("pool issued %d times, want 1", poolIssued)
	}
}

func TestFillOffer_MinimumBindsUntilFinalSliver(t *testing.T) {
	h := newHarness(t)
	offer, _ := h.createOffer(t, 2)
	offer.MinimumTakerFillAmount = amt(50)
	sig := h.sign(t, offer)

	err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(40)})
	if !errors.Is(err, domain.ErrTakerFillAmountSmallerMinimum) {
		t.Fatalf("below minimum: err = %v", err)
	}
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(60)}); err != nil {
		t.Fatalf("fill 60: %v", err)
	}
	// Remaining 20 < minimum 50, but the final sliver is always takeable.
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(20)}); err != nil {
		t.Fatalf("final sliver: %v", err)
	}
	// But not less than all of it.
	h2 := newHarness(t)
	offer2, _ := h2.createOffer(t, 2)
	offer2.MinimumTakerFillAmount = amt(50)
	sig2 := h2.sign(t, offer2)
	if err := h2.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer2, Signature: sig2, TakerFillAmount: amt(60)}); err != nil {
		t.Fatalf("fill 60: %v", err)
	}
	err = h2.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer2, Signature: sig2, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrTakerFillAmountSmallerMinimum) {
		t.Errorf("partial sliver: err = %v", err)
	}
}

func TestFillOffer_SignatureChecks(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 3)

	// Signed by someone other than the stated maker.
	wrongSigner, err := crypto.NewSigner(otherKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	wrongSig, err := wrongSigner.SignOffer(testDomain(), offer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: wrongSig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("wrong signer: err = %v", err)
	}

	// Malformed v.
	badV := sig
	badV.V = 99
	err = h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: badV, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrInvalidSignatureFormat) {
		t.Errorf("bad v: err = %v", err)
	}

	// Tampered offer no longer matches the signature.
	tampered := offer
	tampered.TakerAmount = amt(81)
	err = h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: tampered, Signature: sig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("tampered: err = %v", err)
	}

	// Nothing stuck.
	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.TakerFilledAmount.Sign() != 0 {
		t.Errorf("filled after failures = %s", rs.TakerFilledAmount)
	}
	if !rs.IsSignatureValid {
		t.Error("genuine signature reported invalid")
	}
}

func TestFillOffer_ReservedTaker(t *testing.T) {
	h := newHarness(t)
	offer, _ := h.createOffer(t, 4)
	offer.Taker = takerAddr
	sig := h.sign(t, offer)

	other := common.HexToAddress("0x9999999999999999999999999999999999999999")
	h.eng.MintCollateral(collateralAddr, other, amt(100))

	err := h.eng.FillOffer(other, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrUnauthorizedTaker) {
		t.Errorf("other taker: err = %v", err)
	}
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(10)}); err != nil {
		t.Errorf("reserved taker: %v", err)
	}
}

func TestCancelOffer_IdempotentAndMakerOnly(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 5)

	if err := h.eng.CancelOffer(takerAddr, offer); !errors.Is(err, domain.ErrMsgSenderNotMaker) {
		t.Fatalf("non-maker cancel: err = %v", err)
	}

	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(30)}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := h.eng.CancelOffer(h.maker, offer); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.Status != domain.OfferStatusCancelled {
		t.Errorf("status = %s, want cancelled", rs.Status)
	}
	// Cancellation never erases what was already filled.
	if rs.TakerFilledAmount.Cmp(amt(30)) != 0 {
		t.Errorf("filled = %s, want 30", rs.TakerFilledAmount)
	}
	if rs.ActualTakerFillableAmount.Sign() != 0 {
		t.Errorf("fillable = %s, want 0", rs.ActualTakerFillableAmount)
	}

	err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrOfferInvalidCancelledFilledOrExpired) {
		t.Errorf("fill after cancel: err = %v", err)
	}

	// Cancelling again succeeds and changes nothing.
	if err := h.eng.CancelOffer(h.maker, offer); err != nil {
		t.Errorf("repeat cancel: %v", err)
	}
}

func TestOfferRelevantState_FillableTracksMakerAllowance(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 6)

	// Maker allowance of 5 supports 5*80/20 = 20 taker units.
	h.eng.ApproveEscrow(collateralAddr, h.maker, amt(5))
	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.ActualTakerFillableAmount.Cmp(amt(20)) != 0 {
		t.Errorf("fillable = %s, want 20", rs.ActualTakerFillableAmount)
	}
	if rs.Status != domain.OfferStatusFillable {
		t.Errorf("status = %s, want fillable", rs.Status)
	}

	// Fills beyond the clamp fail on the maker's allowance.
	err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(40)})
	if !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Errorf("clamped fill: err = %v", err)
	}

	// Restoring the allowance restores the full remaining amount.
	h.eng.ApproveEscrow(collateralAddr, h.maker, amt(1000))
	rs = h.eng.OfferRelevantState(offer, sig)
	if rs.ActualTakerFillableAmount.Cmp(amt(80)) != 0 {
		t.Errorf("fillable = %s, want 80", rs.ActualTakerFillableAmount)
	}
}

func TestOfferRelevantState_StatusPrecedence(t *testing.T) {
	h := newHarness(t)
	offer, _ := h.createOffer(t, 7)
	offer.Terms.Floor = amt(90000) // floor above cap
	sig := h.sign(t, offer)

	if err := h.eng.CancelOffer(h.maker, offer); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Invalid outranks cancelled.
	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.Status != domain.OfferStatusInvalid {
		t.Errorf("status = %s, want invalid", rs.Status)
	}

	// Expired outranks filled-from-now-on fills.
	h2 := newHarness(t)
	offer2, sig2 := h2.createOffer(t, 7)
	h2.now = offer2.OfferExpiry + 1
	rs = h2.eng.OfferRelevantState(offer2, sig2)
	if rs.Status != domain.OfferStatusExpired {
		t.Errorf("status = %s, want expired", rs.Status)
	}
	err := h2.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer2, Signature: sig2, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrOfferInvalidCancelledFilledOrExpired) {
		t.Errorf("fill expired: err = %v", err)
	}
}

func TestFillOfferBatch_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	offerA, sigA := h.createOffer(t, 8)
	offerB, _ := h.createOffer(t, 9)
	offerB.MinimumTakerFillAmount = amt(50)
	sigB := h.sign(t, offerB)

	err := h.eng.FillOfferBatch(takerAddr, []engine.FillRequest{
		{Offer: offerA, Signature: sigA, TakerFillAmount: amt(40)},
		{Offer: offerB, Signature: sigB, TakerFillAmount: amt(10)}, // below minimum
	})
	if !errors.Is(err, domain.ErrTakerFillAmountSmallerMinimum) {
		t.Fatalf("batch err = %v", err)
	}

	// The first fill must have been rolled back with the second.
	rs := h.eng.OfferRelevantState(offerA, sigA)
	if rs.TakerFilledAmount.Sign() != 0 {
		t.Errorf("offer A filled = %s after failed batch", rs.TakerFilledAmount)
	}
	if _, err := h.eng.GetPool(h.eng.TypedOfferHash(offerA)); !errors.Is(err, domain.ErrPoolNotFound) {
		t.Errorf("pool A exists after failed batch: %v", err)
	}
	if got := h.eng.CollateralBalance(collateralAddr, takerAddr); got.Cmp(amt(1000)) != 0 {
		t.Errorf("taker balance = %s, want untouched 1000", got)
	}

	// The same batch with a valid second leg applies both.
	if err := h.eng.FillOfferBatch(takerAddr, []engine.FillRequest{
		{Offer: offerA, Signature: sigA, TakerFillAmount: amt(40)},
		{Offer: offerB, Signature: sigB, TakerFillAmount: amt(50)},
	}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if rs := h.eng.OfferRelevantState(offerA, sigA); rs.TakerFilledAmount.Cmp(amt(40)) != 0 {
		t.Errorf("offer A filled = %s, want 40", rs.TakerFilledAmount)
	}
	if rs := h.eng.OfferRelevantState(offerB, sigB); rs.TakerFilledAmount.Cmp(amt(50)) != 0 {
		t.Errorf("offer B filled = %s, want 50", rs.TakerFilledAmount)
	}
}

func TestAddLiquidity_RequiresLivePool(t *testing.T) {
	h := newHarness(t)
	createOffer, createSig := h.createOffer(t, 10)
	poolID := h.eng.TypedOfferHash(createOffer)

	addOffer := domain.Offer{
		Kind:                   domain.OfferKindAdd,
		Maker:                  h.maker,
		MakerCollateralAmount:  amt(10),
		TakerAmount:            amt(10),
		MakerIsLong:            false,
		OfferExpiry:            h.now + 3600,
		MinimumTakerFillAmount: fp.Zero(),
		Salt:                   big.NewInt(11),
		PoolID:                 poolID,
	}
	addSig := h.sign(t, addOffer)

	// Pool does not exist yet.
	rs := h.eng.OfferRelevantState(addOffer, addSig)
	if rs.PoolExists {
		t.Error("pool reported existing before creation")
	}
	if rs.ActualTakerFillableAmount.Sign() != 0 {
		t.Errorf("fillable = %s, want 0", rs.ActualTakerFillableAmount)
	}
	err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: addOffer, Signature: addSig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrPoolNotFound) {
		t.Fatalf("add before create: err = %v", err)
	}

	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: createOffer, Signature: createSig, TakerFillAmount: amt(80)}); err != nil {
		t.Fatalf("create fill: %v", err)
	}
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: addOffer, Signature: addSig, TakerFillAmount: amt(10)}); err != nil {
		t.Fatalf("add fill: %v", err)
	}

	pool, _ := h.eng.GetPool(poolID)
	if pool.CollateralBalance.Cmp(amt(120)) != 0 {
		t.Errorf("pool balance = %s, want 120", pool.CollateralBalance)
	}
	// Maker is short this time.
	if got := h.eng.PositionBalance(pool.ShortToken, h.maker); got.Cmp(amt(20)) != 0 {
		t.Errorf("maker short = %s, want 20", got)
	}

	// Past pool expiry the offer may still be unexpired but the pool is done.
	h.now = pool.ExpiryTime
	addOffer2 := addOffer
	addOffer2.Salt = big.NewInt(12)
	addOffer2.OfferExpiry = h.now + 3600
	addSig2 := h.sign(t, addOffer2)
	err = h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: addOffer2, Signature: addSig2, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrPoolExpired) {
		t.Errorf("add after pool expiry: err = %v", err)
	}
}

func TestRemoveLiquidity_SplitsReleasedCollateral(t *testing.T) {
	h := newHarness(t)
	createOffer, createSig := h.createOffer(t, 13)
	poolID := h.eng.TypedOfferHash(createOffer)
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: createOffer, Signature: createSig, TakerFillAmount: amt(80)}); err != nil {
		t.Fatalf("create fill: %v", err)
	}
	pool, _ := h.eng.GetPool(poolID)

	// Maker holds 100 long, taker 100 short. Maker offers to unwind 40
	// position tokens asking 10 collateral for themselves.
	removeOffer := domain.Offer{
		Kind:                   domain.OfferKindRemove,
		Maker:                  h.maker,
		MakerCollateralAmount:  amt(10),
		TakerAmount:            amt(40),
		MakerIsLong:            true,
		OfferExpiry:            h.now + 3600,
		MinimumTakerFillAmount: fp.Zero(),
		Salt:                   big.NewInt(14),
		PoolID:                 poolID,
	}
	removeSig := h.sign(t, removeOffer)

	rs := h.eng.OfferRelevantState(removeOffer, removeSig)
	if rs.ActualTakerFillableAmount.Cmp(amt(40)) != 0 {
		t.Errorf("fillable = %s, want 40", rs.ActualTakerFillableAmount)
	}

	makerBefore := h.eng.CollateralBalance(collateralAddr, h.maker)
	takerBefore := h.eng.CollateralBalance(collateralAddr, takerAddr)

	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: removeOffer, Signature: removeSig, TakerFillAmount: amt(40)}); err != nil {
		t.Fatalf("remove fill: %v", err)
	}

	pool, _ = h.eng.GetPool(poolID)
	if pool.CollateralBalance.Cmp(amt(60)) != 0 {
		t.Errorf("pool balance = %s, want 60", pool.CollateralBalance)
	}
	if got := h.eng.PositionBalance(pool.LongToken, h.maker); got.Cmp(amt(60)) != 0 {
		t.Errorf("maker long = %s, want 60", got)
	}
	if got := h.eng.PositionBalance(pool.ShortToken, takerAddr); got.Cmp(amt(60)) != 0 {
		t.Errorf("taker short = %s, want 60", got)
	}

	// Released 40; fees 40*0.3% = 0.12; maker gets the asked 10 and the
	// taker the remaining 29.88.
	makerGain := new(big.Int).Sub(h.eng.CollateralBalance(collateralAddr, h.maker), makerBefore)
	takerGain := new(big.Int).Sub(h.eng.CollateralBalance(collateralAddr, takerAddr), takerBefore)
	if makerGain.Cmp(amt(10)) != 0 {
		t.Errorf("maker gain = %s, want 10", makerGain)
	}
	wantTaker := new(big.Int).Sub(amt(30), big.NewInt(0).Mul(big.NewInt(12), big.NewInt(1e16))) // 29.88
	if takerGain.Cmp(wantTaker) != 0 {
		t.Errorf("taker gain = %s, want %s", takerGain, wantTaker)
	}
	if got := h.eng.GetClaim(collateralAddr, treasuryAddr); got.Cmp(big.NewInt(0).Mul(big.NewInt(10), big.NewInt(1e16))) != 0 {
		t.Errorf("treasury claim = %s, want 0.1", got)
	}
	if got := h.eng.GetClaim(collateralAddr, dataProvider2); got.Cmp(big.NewInt(0).Mul(big.NewInt(2), big.NewInt(1e16))) != 0 {
		t.Errorf("data provider claim = %s, want 0.02", got)
	}
}

func TestRemoveLiquidity_FillableClampsToMakerPosition(t *testing.T) {
	h := newHarness(t)
	createOffer, createSig := h.createOffer(t, 15)
	poolID := h.eng.TypedOfferHash(createOffer)
	// Only 40 filled, so the maker holds 50 long (40 + 10 maker side).
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: createOffer, Signature: createSig, TakerFillAmount: amt(40)}); err != nil {
		t.Fatalf("create fill: %v", err)
	}

	removeOffer := domain.Offer{
		Kind:                   domain.OfferKindRemove,
		Maker:                  h.maker,
		MakerCollateralAmount:  amt(10),
		TakerAmount:            amt(80),
		MakerIsLong:            true,
		OfferExpiry:            h.now + 3600,
		MinimumTakerFillAmount: fp.Zero(),
		Salt:                   big.NewInt(16),
		PoolID:                 poolID,
	}
	removeSig := h.sign(t, removeOffer)

	rs := h.eng.OfferRelevantState(removeOffer, removeSig)
	if rs.ActualTakerFillableAmount.Cmp(amt(50)) != 0 {
		t.Errorf("fillable = %s, want maker position 50", rs.ActualTakerFillableAmount)
	}
}

func TestListUnconfirmedExpired(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 17)
	poolID := h.eng.TypedOfferHash(offer)
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(80)}); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if ids := h.eng.ListUnconfirmedExpired(); len(ids) != 0 {
		t.Errorf("unexpired pool listed: %v", ids)
	}

	pool, _ := h.eng.GetPool(poolID)
	h.now = pool.ExpiryTime + 1
	ids := h.eng.ListUnconfirmedExpired()
	if len(ids) != 1 || ids[0] != poolID {
		t.Fatalf("ids = %v, want [%s]", ids, poolID)
	}

	if err := h.eng.SubmitFinalReferenceValue(dataProvider2, poolID, amt(50000), false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ids := h.eng.ListUnconfirmedExpired(); len(ids) != 0 {
		t.Errorf("confirmed pool still listed: %v", ids)
	}
}

func TestRedeemThroughEngine_EndToEnd(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 18)
	poolID := h.eng.TypedOfferHash(offer)
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(80)}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	pool, _ := h.eng.GetPool(poolID)

	h.now = pool.ExpiryTime + 1
	// Final value at the inflection: g = 0.5, net of 0.3% fees = 0.4985.
	if err := h.eng.SubmitFinalReferenceValue(dataProvider2, poolID, amt(60000), false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	before := h.eng.CollateralBalance(collateralAddr, h.maker)
	if err := h.eng.RedeemPositionToken(h.maker, pool.LongToken, amt(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	gain := new(big.Int).Sub(h.eng.CollateralBalance(collateralAddr, h.maker), before)
	want := new(big.Int).Mul(big.NewInt(49_850_000), big.NewInt(1e12)) // 49.85
	if gain.Cmp(want) != 0 {
		t.Errorf("redeemed = %s, want %s", gain, want)
	}

	// Redeeming a long token someone else holds fails and rolls back.
	err := h.eng.RedeemPositionToken(dataProvider2, pool.LongToken, amt(1))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("foreign redeem: err = %v", err)
	}
}

func TestGetPool_SnapshotUnaffectedByLaterFills(t *testing.T) {
	h := newHarness(t)
	offer, sig := h.createOffer(t, 19)
	poolID := h.eng.TypedOfferHash(offer)

	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(40)}); err != nil {
		t.Fatalf("fill 40: %v", err)
	}
	snapshot, err := h.eng.GetPool(poolID)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if snapshot.CollateralBalance.Cmp(amt(50)) != 0 {
		t.Fatalf("snapshot balance = %s, want 50", snapshot.CollateralBalance)
	}

	// Filling again deposits into the live pool in place. A previously
	// returned snapshot must keep reading its old values.
	if err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(40)}); err != nil {
		t.Fatalf("fill 40: %v", err)
	}
	if snapshot.CollateralBalance.Cmp(amt(50)) != 0 {
		t.Errorf("snapshot balance mutated to %s, want 50", snapshot.CollateralBalance)
	}

	live, _ := h.eng.GetPool(poolID)
	if live.CollateralBalance.Cmp(amt(100)) != 0 {
		t.Errorf("live balance = %s, want 100", live.CollateralBalance)
	}

	// And the other way round: scribbling on a snapshot never reaches the
	// engine's state.
	snapshot.CollateralBalance.SetInt64(0)
	snapshot.Floor.SetInt64(0)
	live, _ = h.eng.GetPool(poolID)
	if live.CollateralBalance.Cmp(amt(100)) != 0 {
		t.Errorf("live balance = %s after snapshot write, want 100", live.CollateralBalance)
	}
	if live.Floor.Cmp(amt(40000)) != 0 {
		t.Errorf("live floor = %s after snapshot write, want 40000", live.Floor)
	}
}

func TestFillOffer_CreateOfferWithoutTermsIsInvalid(t *testing.T) {
	h := newHarness(t)
	offer, _ := h.createOffer(t, 20)
	offer.Terms = nil
	sig := h.sign(t, offer)

	err := h.eng.FillOffer(takerAddr, engine.FillRequest{Offer: offer, Signature: sig, TakerFillAmount: amt(10)})
	if !errors.Is(err, domain.ErrOfferInvalidCancelledFilledOrExpired) {
		t.Fatalf("term-less fill: err = %v", err)
	}

	rs := h.eng.OfferRelevantState(offer, sig)
	if rs.Status != domain.OfferStatusInvalid {
		t.Errorf("status = %s, want invalid", rs.Status)
	}
	if rs.ActualTakerFillableAmount.Sign() != 0 {
		t.Errorf("fillable = %s, want 0", rs.ActualTakerFillableAmount)
	}

	// The maker may still cancel to be safe.
	if err := h.eng.CancelOffer(h.maker, offer); err != nil {
		t.Errorf("cancel: %v", err)
	}
}
