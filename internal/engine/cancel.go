package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// CancelOffer closes an offer permanently. Only the maker may cancel, and
// cancellation is idempotent: cancelling an already cancelled, fully filled,
// or expired offer succeeds and leaves the record Cancelled. No signature is
// needed; the maker authorizes by calling.
func (e *Engine) CancelOffer(caller common.Address, offer domain.Offer) error {
	return e.transact(func(now int64) ([]domain.Event, error) {
		if caller != offer.Maker {
			return nil, domain.ErrMsgSenderNotMaker
		}

		hash := e.eip712.TypedOfferHash(offer)
		rec := e.st.FillRecord(hash)
		rec.Cancelled = true
		e.st.SetFillRecord(hash, rec)

		return []domain.Event{{
			Type: domain.EventOfferCancelled,
			OfferCancelled: &domain.OfferCancelledEvent{
				TypedOfferHash: hash,
				Maker:          offer.Maker,
			},
		}}, nil
	})
}
