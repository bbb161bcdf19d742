package settlement_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/divaprotocol/diva-engine/internal/fp"
	"github.com/divaprotocol/diva-engine/internal/settlement"
)

func unit(f float64) *big.Int {
	// Exact for the test constants used here (all multiples of 1e-5).
	return new(big.Int).Mul(big.NewInt(int64(math.Round(f*100000))), big.NewInt(1e13))
}

func TestLongPayoffFraction_Branches(t *testing.T) {
	floor := unit(1500)
	inflection := unit(1600)
	cap := unit(1800)
	gradient := unit(0.5)

	cases := []struct {
		name  string
		final *big.Int
		want  *big.Int
	}{
		{"below floor", unit(1400), unit(0)},
		{"at floor", unit(1500), unit(0)},
		{"mid lower leg", unit(1550), unit(0.25)},
		{"at inflection", unit(1600), unit(0.5)},
		{"mid upper leg", unit(1700), unit(0.75)},
		{"at cap", unit(1800), unit(1)},
		{"above cap", unit(2500), unit(1)},
	}
	for _, tc := range cases {
		got := settlement.LongPayoffFraction(floor, inflection, cap, gradient, tc.final)
		if got.Cmp(tc.want) != 0 {
			t.Errorf("%s: g = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestLongPayoffFraction_DegenerateCurve(t *testing.T) {
	// floor == inflection == cap: the interpolation legs vanish and only
	// the three-way comparison against the single point remains.
	v := unit(1600)
	gradient := unit(0.5)

	if g := settlement.LongPayoffFraction(v, v, v, gradient, unit(1600)); g.Cmp(gradient) != 0 {
		t.Errorf("at point: g = %s, want %s", g, gradient)
	}
	if g := settlement.LongPayoffFraction(v, v, v, gradient, unit(1590)); g.Sign() != 0 {
		t.Errorf("below point: g = %s, want 0", g)
	}
	if g := settlement.LongPayoffFraction(v, v, v, gradient, unit(1610)); g.Cmp(fp.Scale) != 0 {
		t.Errorf("above point: g = %s, want 1e18", g)
	}
}

func TestPayoffFractions_SumToOne(t *testing.T) {
	floor := unit(100)
	inflection := unit(250)
	cap := unit(700)
	gradient := unit(0.37)

	finals := []*big.Int{
		unit(0), unit(99), unit(100), unit(170), unit(250),
		unit(251), unit(500), unit(700), unit(12345),
	}
	for _, final := range finals {
		long := settlement.LongPayoffFraction(floor, inflection, cap, gradient, final)
		short := settlement.ShortPayoffFraction(long)
		sum := new(big.Int).Add(long, short)
		if sum.Cmp(fp.Scale) != 0 {
			t.Errorf("final %s: long+short = %s, want 1e18", final, sum)
		}
		if long.Sign() < 0 || long.Cmp(fp.Scale) > 0 {
			t.Errorf("final %s: long %s out of [0, 1e18]", final, long)
		}
	}
}
