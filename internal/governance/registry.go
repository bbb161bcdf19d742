// Package governance implements the read-mostly parameter registry the
// engine settles against: versioned fee and settlement-period histories,
// treasury and fallback-data-provider addresses with delayed activation, and
// the collateral-return pause switch. Who may mutate these and under what
// delay is out of scope; the registry only stores and answers.
package governance

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// pendingAddress models a two-phase address change: the previous address
// stays authoritative until ActivateAt passes.
type pendingAddress struct {
	Current    common.Address
	Pending    common.Address
	HasPending bool
	ActivateAt int64
}

func (p pendingAddress) at(now int64) common.Address {
	if p.HasPending && now >= p.ActivateAt {
		return p.Pending
	}
	return p.Current
}

// Registry implements domain.Governance. Histories are append-only so the
// indices pools pin at creation stay valid forever.
type Registry struct {
	mu sync.RWMutex

	fees    []domain.Fees
	periods []domain.SettlementPeriods

	treasury pendingAddress
	fallback pendingAddress

	pausedUntil int64
}

var _ domain.Governance = (*Registry)(nil)

// Config seeds the genesis registry entries.
type Config struct {
	ProtocolFee   int64 // 1e18 scale numerators, e.g. 2.5e15 = 0.25%
	SettlementFee int64

	SubmissionPeriod         int64 // seconds
	ChallengePeriod          int64
	ReviewPeriod             int64
	FallbackSubmissionPeriod int64

	Treasury             common.Address
	FallbackDataProvider common.Address
}

// New creates a registry with the genesis fee and period entries at index 0.
func New(cfg Config) *Registry {
	return &Registry{
		fees: []domain.Fees{{
			ProtocolFee:   big.NewInt(cfg.ProtocolFee),
			SettlementFee: big.NewInt(cfg.SettlementFee),
		}},
		periods: []domain.SettlementPeriods{{
			SubmissionPeriod:         cfg.SubmissionPeriod,
			ChallengePeriod:          cfg.ChallengePeriod,
			ReviewPeriod:             cfg.ReviewPeriod,
			FallbackSubmissionPeriod: cfg.FallbackSubmissionPeriod,
		}},
		treasury: pendingAddress{Current: cfg.Treasury},
		fallback: pendingAddress{Current: cfg.FallbackDataProvider},
	}
}

// CurrentFeesIndex returns the index new pools pin.
func (r *Registry) CurrentFeesIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fees) - 1
}

// Fees returns the entry at index; out-of-range indices return the genesis
// entry rather than panicking on corrupted snapshots.
func (r *Registry) Fees(index int) domain.Fees {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.fees) {
		index = 0
	}
	f := r.fees[index]
	return domain.Fees{ProtocolFee: fp.Clone(f.ProtocolFee), SettlementFee: fp.Clone(f.SettlementFee)}
}

// CurrentSettlementPeriodsIndex returns the index new pools pin.
func (r *Registry) CurrentSettlementPeriodsIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.periods) - 1
}

// SettlementPeriods returns the entry at index.
func (r *Registry) SettlementPeriods(index int) domain.SettlementPeriods {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.periods) {
		index = 0
	}
	return r.periods[index]
}

// AppendFees adds a new fee entry; existing pools keep their pinned index.
func (r *Registry) AppendFees(f domain.Fees) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees = append(r.fees, domain.Fees{
		ProtocolFee:   fp.Clone(f.ProtocolFee),
		SettlementFee: fp.Clone(f.SettlementFee),
	})
}

// AppendSettlementPeriods adds a new period entry.
func (r *Registry) AppendSettlementPeriods(p domain.SettlementPeriods) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.periods = append(r.periods, p)
}

// TreasuryAt returns the treasury address active at now. A pending change
// that has not yet activated leaves the previous address authoritative, so
// fees confirmed in between are credited to the old treasury.
func (r *Registry) TreasuryAt(now int64) common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.treasury.at(now)
}

// SetTreasury schedules a treasury change that activates at activateAt.
func (r *Registry) SetTreasury(addr common.Address, activateAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.treasury.Current = r.treasury.at(activateAt - 1)
	r.treasury.Pending = addr
	r.treasury.HasPending = true
	r.treasury.ActivateAt = activateAt
}

// FallbackDataProviderAt returns the fallback provider active at now.
func (r *Registry) FallbackDataProviderAt(now int64) common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback.at(now)
}

// SetFallbackDataProvider schedules a fallback provider change.
func (r *Registry) SetFallbackDataProvider(addr common.Address, activateAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback.Current = r.fallback.at(activateAt - 1)
	r.fallback.Pending = addr
	r.fallback.HasPending = true
	r.fallback.ActivateAt = activateAt
}

// ReturnCollateralPausedUntil reports the pause deadline (zero = never).
func (r *Registry) ReturnCollateralPausedUntil() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pausedUntil
}

// PauseReturnCollateral suspends collateral-returning operations until the
// given unix time.
func (r *Registry) PauseReturnCollateral(until int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pausedUntil = until
}
