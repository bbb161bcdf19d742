package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolStatus tracks the settlement state machine of a pool's final reference
// value. Confirmed is terminal.
type PoolStatus string

const (
	PoolStatusOpen       PoolStatus = "open"
	PoolStatusSubmitted  PoolStatus = "submitted"
	PoolStatusChallenged PoolStatus = "challenged"
	PoolStatusConfirmed  PoolStatus = "confirmed"
)

// Pool is one contingent pool. Created by the first fill of a create-pool
// offer (pool id = typed offer hash) and mutated only by liquidity fills,
// settlement transitions, and redemptions. After confirmation only
// CollateralBalance may still change (downward, via redemptions).
type Pool struct {
	ID common.Hash

	ReferenceAsset  string
	ExpiryTime      int64
	Floor           *big.Int
	Inflection      *big.Int
	Cap             *big.Int
	Gradient        *big.Int // 1e18 scale
	CollateralToken common.Address
	DataProvider    common.Address
	Capacity        *big.Int
	PermissionToken common.Address

	CollateralBalance *big.Int

	LongToken  common.Hash
	ShortToken common.Hash

	// Snapshot indices into the governance fee / settlement-period history,
	// pinned at creation so later governance changes never apply retroactively.
	IndexFees              int
	IndexSettlementPeriods int

	StatusFinalReferenceValue PoolStatus
	StatusTimestamp           int64
	FinalReferenceValue       *big.Int

	// FinalValueSubmitter is the party whose submission is currently
	// standing: the data provider or, during the fallback window, the
	// fallback provider. Zero while Open. Lazy confirmation credits the
	// settlement fee to this address.
	FinalValueSubmitter common.Address

	// Per-token payout rates, 1e18 scale. Zero until Confirmed, then fixed.
	PayoutLong  *big.Int
	PayoutShort *big.Int
}

// Expired reports whether the pool's underlying observation time has passed.
func (p *Pool) Expired(now int64) bool {
	return now >= p.ExpiryTime
}

// Clone returns a deep copy of the pool. Every big.Int field is a fresh
// value, so a caller may hold the copy across later fills and settlement
// transitions without observing their mutations.
func (p *Pool) Clone() Pool {
	cp := *p
	cp.Floor = cloneBig(p.Floor)
	cp.Inflection = cloneBig(p.Inflection)
	cp.Cap = cloneBig(p.Cap)
	cp.Gradient = cloneBig(p.Gradient)
	cp.Capacity = cloneBig(p.Capacity)
	cp.CollateralBalance = cloneBig(p.CollateralBalance)
	cp.FinalReferenceValue = cloneBig(p.FinalReferenceValue)
	cp.PayoutLong = cloneBig(p.PayoutLong)
	cp.PayoutShort = cloneBig(p.PayoutShort)
	return cp
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// PositionToken identifies one side of a pool. Token ids are derived
// deterministically from the pool id, so a token resolves back to its pool.
type PositionToken struct {
	ID     common.Hash
	PoolID common.Hash
	IsLong bool
}

// LongTokenID derives the long-side position token id for a pool.
func LongTokenID(poolID common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(poolID.Bytes(), []byte("long")))
}

// ShortTokenID derives the short-side position token id for a pool.
func ShortTokenID(poolID common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(poolID.Bytes(), []byte("short")))
}
