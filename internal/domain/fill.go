package domain

import "math/big"

// FillRecord is the per-offer progress ledger entry, keyed by typed offer
// hash. Filled only ever grows; cancellation is a terminal flag rather than
// a magic amount, and once set it is never cleared.
type FillRecord struct {
	Cancelled bool
	Filled    *big.Int
}

// NewFillRecord returns an empty in-progress record.
func NewFillRecord() FillRecord {
	return FillRecord{Filled: new(big.Int)}
}

// FilledAmount returns the cumulative filled amount, treating a missing
// Filled as zero.
func (r FillRecord) FilledAmount() *big.Int {
	if r.Filled == nil {
		return new(big.Int)
	}
	return r.Filled
}

// Remaining returns offerAmount - filled, clamped at zero. A cancelled
// record has no remaining capacity by definition.
func (r FillRecord) Remaining(offerAmount *big.Int) *big.Int {
	if r.Cancelled {
		return new(big.Int)
	}
	rem := new(big.Int).Sub(offerAmount, r.FilledAmount())
	if rem.Sign() < 0 {
		return new(big.Int)
	}
	return rem
}
