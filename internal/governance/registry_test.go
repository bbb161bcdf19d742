package governance_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/governance"
)

var (
	treasuryA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasuryB = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	fallbackA = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newRegistry() *governance.Registry {
	return governance.New(governance.Config{
		ProtocolFee:              2_500_000_000_000_000,
		SettlementFee:            500_000_000_000_000,
		SubmissionPeriod:         100,
		ChallengePeriod:          50,
		ReviewPeriod:             60,
		FallbackSubmissionPeriod: 200,
		Treasury:                 treasuryA,
		FallbackDataProvider:     fallbackA,
	})
}

func TestRegistry_HistoryIndicesStayValid(t *testing.T) {
	r := newRegistry()

	if got := r.CurrentFeesIndex(); got != 0 {
		t.Fatalf("genesis fees index = %d", got)
	}
	pinned := r.CurrentFeesIndex()

	r.AppendFees(domain.Fees{
		ProtocolFee:   big.NewInt(5_000_000_000_000_000),
		SettlementFee: big.NewInt(1_000_000_000_000_000),
	})
	if got := r.CurrentFeesIndex(); got != 1 {
		t.Errorf("fees index after append = %d, want 1", got)
	}

	// A pool that pinned index 0 keeps seeing the genesis rates.
	old := r.Fees(pinned)
	if old.ProtocolFee.Cmp(big.NewInt(2_500_000_000_000_000)) != 0 {
		t.Errorf("pinned protocol fee = %s", old.ProtocolFee)
	}
	cur := r.Fees(r.CurrentFeesIndex())
	if cur.ProtocolFee.Cmp(big.NewInt(5_000_000_000_000_000)) != 0 {
		t.Errorf("current protocol fee = %s", cur.ProtocolFee)
	}

	r.AppendSettlementPeriods(domain.SettlementPeriods{
		SubmissionPeriod: 500, ChallengePeriod: 50, ReviewPeriod: 60, FallbackSubmissionPeriod: 200,
	})
	if got := r.SettlementPeriods(0).SubmissionPeriod; got != 100 {
		t.Errorf("pinned submission period = %d, want 100", got)
	}
	if got := r.SettlementPeriods(r.CurrentSettlementPeriodsIndex()).SubmissionPeriod; got != 500 {
		t.Errorf("current submission period = %d, want 500", got)
	}

	// Out-of-range reads fall back to genesis instead of panicking.
	if got := r.Fees(42); got.ProtocolFee.Cmp(big.NewInt(2_500_000_000_000_000)) != 0 {
		t.Errorf("out-of-range fees = %s", got.ProtocolFee)
	}
}

func TestRegistry_FeesReturnsCopies(t *testing.T) {
	r := newRegistry()
	f := r.Fees(0)
	f.ProtocolFee.SetInt64(0)
	if r.Fees(0).ProtocolFee.Sign() == 0 {
		t.Error("mutating a returned fee entry changed the registry")
	}
}

func TestRegistry_DelayedAddressActivation(t *testing.T) {
	r := newRegistry()
	r.SetTreasury(treasuryB, 1000)

	if got := r.TreasuryAt(999); got != treasuryA {
		t.Errorf("treasury before activation = %s", got)
	}
	if got := r.TreasuryAt(1000); got != treasuryB {
		t.Errorf("treasury at activation = %s", got)
	}
	if got := r.TreasuryAt(5000); got != treasuryB {
		t.Errorf("treasury after activation = %s", got)
	}

	// Rescheduling before activation replaces the pending address; the old
	// current address holds until the new activation time.
	r2 := newRegistry()
	r2.SetTreasury(treasuryB, 1000)
	r2.SetTreasury(treasuryA, 2000) // back to A, later
	if got := r2.TreasuryAt(1500); got != treasuryB {
		t.Errorf("treasury mid-reschedule = %s, want activated first change", got)
	}
}

func TestRegistry_PauseReturnCollateral(t *testing.T) {
	r := newRegistry()
	if got := r.ReturnCollateralPausedUntil(); got != 0 {
		t.Fatalf("initial pause = %d", got)
	}
	r.PauseReturnCollateral(12345)
	if got := r.ReturnCollateralPausedUntil(); got != 12345 {
		t.Errorf("pause = %d, want 12345", got)
	}
}
