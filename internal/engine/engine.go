// Package engine exposes the protocol's public operations: filling and
// cancelling signed offers, settlement submissions and challenges, and
// position token redemption. It owns the operation lock and the
// all-or-nothing transaction semantics; the actual transition logic lives in
// the settlement package and in this package's fill/cancel/validator files,
// all operating on the shared state context.
package engine

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
	"github.com/divaprotocol/diva-engine/internal/settlement"
	"github.com/divaprotocol/diva-engine/internal/state"
)

// EventSink receives committed protocol events in emission order.
type EventSink func(domain.Event)

// Engine serializes all public protocol operations over one state context.
// The execution model is single-writer-at-a-time: the mutex stands in for
// the sequential transaction model, so transition code below it needs no
// compare-and-swap, only ordinary read-modify-write.
type Engine struct {
	mu sync.Mutex

	st     *state.State
	ledger domain.TokenLedger
	gov    domain.Governance
	eip712 *crypto.Domain

	now    func() int64
	sink   EventSink
	logger *slog.Logger
}

// Options configures optional Engine collaborators.
type Options struct {
	// Now supplies the transaction timestamp; defaults to wall-clock seconds.
	Now func() int64
	// Sink receives committed events; defaults to discarding them.
	Sink EventSink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates an Engine over the given state context and collaborators.
func New(st *state.State, ledger domain.TokenLedger, gov domain.Governance, eip712 *crypto.Domain, opts Options) *Engine {
	e := &Engine{
		st:     st,
		ledger: ledger,
		gov:    gov,
		eip712: eip712,
		now:    opts.Now,
		sink:   opts.Sink,
		logger: opts.Logger,
	}
	if e.now == nil {
		e.now = func() int64 { return time.Now().Unix() }
	}
	if e.sink == nil {
		e.sink = func(domain.Event) {}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// TypedOfferHash computes the EIP-712 digest identifying an offer under the
// engine's signing domain.
func (e *Engine) TypedOfferHash(offer domain.Offer) common.Hash {
	return e.eip712.TypedOfferHash(offer)
}

// transact runs fn under the operation lock with whole-transaction
// semantics: on error the pre-operation snapshot is restored, so a failed
// call leaves no observable state change; on success the produced events are
// stamped and dispatched in order.
func (e *Engine) transact(fn func(now int64) ([]domain.Event, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.st.Clone()
	now := e.now()

	evs, err := fn(now)
	if err != nil {
		e.st.Restore(snapshot)
		return err
	}
	e.dispatch(evs)
	return nil
}

func (e *Engine) dispatch(evs []domain.Event) {
	at := time.Now().UTC()
	for _, ev := range evs {
		ev.ID = uuid.NewString()
		ev.At = at
		e.sink(ev)
	}
}

func (e *Engine) env(now int64) settlement.Env {
	return settlement.Env{State: e.st, Ledger: e.ledger, Gov: e.gov, Now: now}
}

// --------------------------------------------------------------------------
// Settlement entry points
// --------------------------------------------------------------------------

// SubmitFinalReferenceValue submits (or force-settles) a pool's final value.
func (e *Engine) SubmitFinalReferenceValue(caller common.Address, poolID common.Hash, value *big.Int, allowChallenge bool) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		return settlement.Submit(e.env(now), caller, poolID, value, allowChallenge)
	})
}

// ChallengeFinalReferenceValue contests a submitted value.
func (e *Engine) ChallengeFinalReferenceValue(caller common.Address, poolID common.Hash, proposedValue *big.Int) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		return settlement.Challenge(e.env(now), caller, poolID, proposedValue)
	})
}

// Finalize runs the idempotent lazy-confirmation path explicitly, e.g. from
// the settlement sweeper. Calling it on an already Confirmed pool succeeds
// and does nothing.
func (e *Engine) Finalize(poolID common.Hash) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		pool := e.st.Pool(poolID)
		if pool == nil {
			return nil, domain.ErrPoolNotFound
		}
		return settlement.EnsureSettled(e.env(now), pool)
	})
}

// RedeemPositionToken burns amount of a position token held by caller and
// pays out the confirmed per-token collateral rate.
func (e *Engine) RedeemPositionToken(caller common.Address, token common.Hash, amount *big.Int) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		return settlement.Redeem(e.env(now), caller, token, amount)
	})
}

// --------------------------------------------------------------------------
// Read-only views
// --------------------------------------------------------------------------

// GetPool returns a deep copy of the pool with the given id. The copy shares
// no big.Int values with the live pool, so concurrent readers (the journal
// recorder, the HTTP handlers) never observe in-place mutations from fills
// or settlement transitions.
func (e *Engine) GetPool(id common.Hash) (domain.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.st.Pool(id)
	if p == nil {
		return domain.Pool{}, domain.ErrPoolNotFound
	}
	return p.Clone(), nil
}

// GetFillRecord returns a copy of the fill record for a typed offer hash. A
// never-touched offer yields the empty in-progress record.
func (e *Engine) GetFillRecord(typedOfferHash common.Hash) domain.FillRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.st.FillRecord(typedOfferHash)
	return domain.FillRecord{Cancelled: rec.Cancelled, Filled: fp.Clone(rec.Filled)}
}

// GetClaim returns the claimable fee balance for (token, recipient).
func (e *Engine) GetClaim(token common.Address, recipient common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Claim(token, recipient)
}

// ListUnconfirmedExpired returns ids of expired pools not yet Confirmed,
// for the settlement sweeper.
func (e *Engine) ListUnconfirmedExpired() []common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	var out []common.Hash
	for id, p := range e.st.Pools {
		if p.Expired(now) && p.StatusFinalReferenceValue != domain.PoolStatusConfirmed {
			out = append(out, id)
		}
	}
	return out
}
