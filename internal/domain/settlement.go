package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fees is one immutable entry in the governance fee history. Rates are
// fractions of collateral in 1e18 scale (0.25% = 2.5e15).
type Fees struct {
	ProtocolFee   *big.Int
	SettlementFee *big.Int
}

// SettlementPeriods is one immutable entry in the governance period history.
// All durations in seconds.
type SettlementPeriods struct {
	SubmissionPeriod         int64
	ChallengePeriod          int64
	ReviewPeriod             int64
	FallbackSubmissionPeriod int64
}

// FeeClaim is one claimable fee balance keyed by (collateral token, recipient).
type FeeClaim struct {
	CollateralToken common.Address
	Recipient       common.Address
	Amount          *big.Int
}
