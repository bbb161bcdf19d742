package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// Submit processes a final-reference-value submission for an expired pool.
//
// Who may submit depends on how much time has passed since pool expiry:
// within the submission period only the pool's data provider; within the
// fallback window only the fallback provider; after both, anyone may call
// and the value is forced to the pool's inflection regardless of the
// supplied value and flag. Submitting with allowChallenge=false confirms
// immediately; with true the value enters the challenge window.
//
// From Challenged, only the original data provider may act within the review
// period: resubmitting the identical value confirms it, a different value
// restarts the challenge clock. Equality is exact integer equality.
func Submit(env Env, caller common.Address, poolID common.Hash, value *big.Int, allowChallenge bool) ([]domain.Event, error) {
	pool := env.State.Pool(poolID)
	if pool == nil {
		return nil, domain.ErrPoolNotFound
	}
	if !pool.Expired(env.Now) {
		return nil, domain.ErrPoolNotExpired
	}
	periods := env.periods(pool)

	switch pool.StatusFinalReferenceValue {
	case domain.PoolStatusOpen:
		submissionEnd := pool.ExpiryTime + periods.SubmissionPeriod
		fallbackEnd := submissionEnd + periods.FallbackSubmissionPeriod

		switch {
		case env.Now <= submissionEnd:
			if caller != pool.DataProvider {
				return nil, domain.ErrNotDataProvider
			}
			return submitOrConfirm(env, pool, caller, value, allowChallenge, caller)

		case env.Now <= fallbackEnd:
			fallback := env.Gov.FallbackDataProviderAt(env.Now)
			if caller != fallback {
				return nil, domain.ErrNotFallbackDataProvider
			}
			return submitOrConfirm(env, pool, caller, value, allowChallenge, caller)

		default:
			// Both provider windows elapsed: anyone may settle, the value is
			// forced to the inflection, and the settlement fee goes to the
			// treasury since no provider did the work.
			return confirm(env, pool, fp.Clone(pool.Inflection), caller, env.Gov.TreasuryAt(env.Now)), nil
		}

	case domain.PoolStatusChallenged:
		if caller != pool.DataProvider {
			// The fallback provider never acts during review.
			return nil, domain.ErrNotDataProvider
		}
		if env.Now > pool.StatusTimestamp+periods.ReviewPeriod {
			return nil, domain.ErrReviewPeriodExpired
		}
		if value.Cmp(pool.FinalReferenceValue) == 0 {
			return confirm(env, pool, value, caller, caller), nil
		}
		pool.FinalValueSubmitter = caller
		pool.StatusFinalReferenceValue = domain.PoolStatusSubmitted
		pool.StatusTimestamp = env.Now
		pool.FinalReferenceValue = fp.Clone(value)
		return []domain.Event{statusEvent(pool, domain.PoolStatusSubmitted, caller, value)}, nil

	default: // Submitted, Confirmed
		return nil, domain.ErrAlreadySubmittedOrConfirmed
	}
}

func submitOrConfirm(env Env, pool *domain.Pool, caller common.Address, value *big.Int, allowChallenge bool, feeRecipient common.Address) ([]domain.Event, error) {
	pool.FinalValueSubmitter = caller
	if !allowChallenge {
		return confirm(env, pool, value, caller, feeRecipient), nil
	}
	pool.StatusFinalReferenceValue = domain.PoolStatusSubmitted
	pool.StatusTimestamp = env.Now
	pool.FinalReferenceValue = fp.Clone(value)
	return []domain.Event{statusEvent(pool, domain.PoolStatusSubmitted, caller, value)}, nil
}

// Challenge contests a submitted value. Any position token holder of the
// pool may challenge while the challenge window is open; repeat challenges
// while already Challenged are allowed within the review window and only
// emit an event (the proposed value is informational, never stored).
func Challenge(env Env, caller common.Address, poolID common.Hash, proposedValue *big.Int) ([]domain.Event, error) {
	pool := env.State.Pool(poolID)
	if pool == nil {
		return nil, domain.ErrPoolNotFound
	}

	long := env.Ledger.PositionBalance(pool.LongToken, caller)
	short := env.Ledger.PositionBalance(pool.ShortToken, caller)
	if long.Sign() == 0 && short.Sign() == 0 {
		return nil, domain.ErrNoPositionTokens
	}

	periods := env.periods(pool)

	switch pool.StatusFinalReferenceValue {
	case domain.PoolStatusSubmitted:
		if env.Now > pool.StatusTimestamp+periods.ChallengePeriod {
			return nil, domain.ErrChallengePeriodExpired
		}
		pool.StatusFinalReferenceValue = domain.PoolStatusChallenged
		pool.StatusTimestamp = env.Now
		return []domain.Event{statusEvent(pool, domain.PoolStatusChallenged, caller, proposedValue)}, nil

	case domain.PoolStatusChallenged:
		if env.Now > pool.StatusTimestamp+periods.ReviewPeriod {
			return nil, domain.ErrReviewPeriodExpired
		}
		// Already challenged; record the additional proposal without
		// touching status or clock.
		return []domain.Event{statusEvent(pool, domain.PoolStatusChallenged, caller, proposedValue)}, nil

	default:
		return nil, domain.ErrNothingToChallenge
	}
}

// EnsureSettled is the single idempotent lazy-confirmation helper: every
// entry point that needs a Confirmed pool calls it first. If a submitted
// value outlived its challenge window, or a challenge outlived its review
// window with no provider action, the pool confirms now with the
// last-submitted value; otherwise the caller learns how it is too early.
func EnsureSettled(env Env, pool *domain.Pool) ([]domain.Event, error) {
	periods := env.periods(pool)

	switch pool.StatusFinalReferenceValue {
	case domain.PoolStatusConfirmed:
		return nil, nil

	case domain.PoolStatusSubmitted:
		if env.Now <= pool.StatusTimestamp+periods.ChallengePeriod {
			return nil, domain.ErrChallengePeriodNotExpired
		}
		submitter := standingSubmitter(pool)
		return confirm(env, pool, fp.Clone(pool.FinalReferenceValue), submitter, submitter), nil

	case domain.PoolStatusChallenged:
		if env.Now <= pool.StatusTimestamp+periods.ReviewPeriod {
			return nil, domain.ErrReviewPeriodNotExpired
		}
		submitter := standingSubmitter(pool)
		return confirm(env, pool, fp.Clone(pool.FinalReferenceValue), submitter, submitter), nil

	default: // Open
		return nil, domain.ErrFinalReferenceValueNotSet
	}
}

// standingSubmitter is the party whose submission the lazy confirmation
// fixes. Pools written before the submitter was tracked fall back to the
// data provider.
func standingSubmitter(pool *domain.Pool) common.Address {
	if pool.FinalValueSubmitter != (common.Address{}) {
		return pool.FinalValueSubmitter
	}
	return pool.DataProvider
}

func statusEvent(pool *domain.Pool, status domain.PoolStatus, by common.Address, proposed *big.Int) domain.Event {
	return domain.Event{
		Type: domain.EventStatusChanged,
		StatusChanged: &domain.StatusChangedEvent{
			PoolID:        pool.ID,
			Status:        status,
			By:            by,
			ProposedValue: fp.Clone(proposed),
		},
	}
}
