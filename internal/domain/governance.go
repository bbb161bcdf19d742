package domain

import "github.com/ethereum/go-ethereum/common"

// Governance is the read-only collaborator exposing versioned protocol
// parameters. Fee and period histories are append-only; pools pin the index
// current at their creation so the snapshot they settle under never changes.
// Treasury and fallback-data-provider changes activate with a delay, so
// "address at time T" lookups are time-dependent.
type Governance interface {
	CurrentFeesIndex() int
	Fees(index int) Fees
	CurrentSettlementPeriodsIndex() int
	SettlementPeriods(index int) SettlementPeriods

	TreasuryAt(now int64) common.Address
	FallbackDataProviderAt(now int64) common.Address

	// ReturnCollateralPausedUntil returns the unix time until which
	// collateral-returning operations (redeem, remove-liquidity fills) are
	// suspended; zero when never paused.
	ReturnCollateralPausedUntil() int64
}
