package domain

import "errors"

// Protocol errors. Every failure mode of a public operation maps to exactly
// one of these sentinels; callers match with errors.Is. Operations are
// all-or-nothing, so a returned error implies no observable state change.
var (
	// Authorization
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrInvalidSignatureFormat  = errors.New("invalid signature format")
	ErrUnauthorizedTaker       = errors.New("msg sender is not offer taker")
	ErrMsgSenderNotMaker       = errors.New("msg sender is not offer maker")
	ErrNotDataProvider         = errors.New("caller is not the data provider")
	ErrNotFallbackDataProvider = errors.New("caller is not the fallback data provider")

	// Amount bounds
	ErrTakerFillAmountSmallerMinimum  = errors.New("taker fill amount below minimum")
	ErrTakerFillAmountExceedsFillable = errors.New("taker fill amount exceeds fillable amount")

	// Offer lifecycle
	ErrOfferInvalidCancelledFilledOrExpired = errors.New("offer invalid, cancelled, filled or expired")

	// Settlement timing
	ErrPoolNotExpired              = errors.New("pool not yet expired")
	ErrAlreadySubmittedOrConfirmed = errors.New("final value already submitted or confirmed")
	ErrChallengePeriodExpired      = errors.New("challenge period expired")
	ErrReviewPeriodExpired         = errors.New("review period expired")
	ErrChallengePeriodNotExpired   = errors.New("challenge period not yet expired")
	ErrReviewPeriodNotExpired      = errors.New("review period not yet expired")
	ErrNothingToChallenge          = errors.New("nothing to challenge")
	ErrNoPositionTokens            = errors.New("caller holds no position tokens")
	ErrFinalReferenceValueNotSet   = errors.New("final reference value not set")
	ErrPoolExpired                 = errors.New("pool already expired")

	// Redemption integrity
	ErrInvalidPositionToken  = errors.New("invalid position token")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// Operational
	ErrReturnCollateralPaused = errors.New("return of collateral is paused")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrNotFound               = errors.New("not found")
	ErrLockHeld               = errors.New("lock already held")
)
