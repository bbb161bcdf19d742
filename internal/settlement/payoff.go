// Package settlement implements the dispute-resolution state machine for a
// pool's final reference value, the payoff curve, fee allocation, and
// position token redemption. Functions here operate on an explicit state
// context and are called by the engine with its operation lock held.
package settlement

import (
	"math/big"

	"github.com/divaprotocol/diva-engine/internal/fp"
)

// LongPayoffFraction maps a final reference value onto the pool's
// piecewise-linear payoff curve, returning the long token's gross share g of
// one collateral unit in 1e18 scale. The short share is 1e18 - g, so
// long + short always covers one unit exactly (pre-fee).
//
// The inflection equality is checked first: with a degenerate curve
// (floor == inflection, or inflection == cap) the interpolation branches
// would divide by zero, and a value sitting exactly on the inflection must
// pay the gradient regardless.
func LongPayoffFraction(floor, inflection, cap, gradient, finalValue *big.Int) *big.Int {
	switch {
	case finalValue.Cmp(inflection) == 0:
		return fp.Clone(gradient)
	case finalValue.Cmp(floor) <= 0:
		return fp.Zero()
	case finalValue.Cmp(cap) >= 0:
		return fp.Clone(fp.Scale)
	case finalValue.Cmp(inflection) < 0:
		// floor < finalValue < inflection
		num := new(big.Int).Sub(finalValue, floor)
		den := new(big.Int).Sub(inflection, floor)
		return fp.MulDiv(gradient, num, den)
	default:
		// inflection < finalValue < cap
		num := new(big.Int).Sub(finalValue, inflection)
		den := new(big.Int).Sub(cap, inflection)
		rest := new(big.Int).Sub(fp.Scale, gradient)
		out := fp.MulDiv(rest, num, den)
		return out.Add(out, gradient)
	}
}

// ShortPayoffFraction is the complement of LongPayoffFraction.
func ShortPayoffFraction(long *big.Int) *big.Int {
	return new(big.Int).Sub(fp.Scale, long)
}
