// Package fp provides 1e18 fixed-point arithmetic on big.Int values.
//
// All protocol amounts, rates, and reference values are integers scaled by
// 1e18. Intermediate products are computed at full big.Int width before
// dividing, so multiplying an unbounded collateral balance by a 0..1e18
// fraction can never overflow. All divisions floor.
package fp

import "math/big"

// Scale is the fixed-point unit (1e18).
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// FromInt64 returns n * 1e18.
func FromInt64(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

// Mul returns floor(a * b / 1e18).
func Mul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, Scale)
}

// Div returns floor(a * 1e18 / b). b must be non-zero.
func Div(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, Scale)
	return out.Quo(out, b)
}

// MulDiv returns floor(a * b / c). c must be non-zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// Min returns the smaller of a and b (fresh value).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clone returns a copy of a, treating nil as zero.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a)
}

// IsZero reports whether a is nil or zero.
func IsZero(a *big.Int) bool {
	return a == nil || a.Sign() == 0
}
