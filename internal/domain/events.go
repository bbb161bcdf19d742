package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType enumerates the protocol events emitted for indexers and UIs.
type EventType string

const (
	EventOfferFilled           EventType = "offer_filled"
	EventOfferCancelled        EventType = "offer_cancelled"
	EventPoolIssued            EventType = "pool_issued"
	EventStatusChanged         EventType = "status_changed"
	EventFeeClaimAllocated     EventType = "fee_claim_allocated"
	EventPositionTokenRedeemed EventType = "position_token_redeemed"
)

// Event is the envelope every protocol event travels in: through the journal
// recorder into Postgres, onto the Redis bus, out over WebSocket, and into
// the S3 archive. Exactly one payload pointer is non-nil, matching Type.
type Event struct {
	ID   string    `json:"id"` // uuid
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	OfferFilled           *OfferFilledEvent           `json:"offer_filled,omitempty"`
	OfferCancelled        *OfferCancelledEvent        `json:"offer_cancelled,omitempty"`
	PoolIssued            *PoolIssuedEvent            `json:"pool_issued,omitempty"`
	StatusChanged         *StatusChangedEvent         `json:"status_changed,omitempty"`
	FeeClaimAllocated     *FeeClaimAllocatedEvent     `json:"fee_claim_allocated,omitempty"`
	PositionTokenRedeemed *PositionTokenRedeemedEvent `json:"position_token_redeemed,omitempty"`
}

// OfferFilledEvent records one fill; TakerFilledAmount is the cumulative
// amount after this fill.
type OfferFilledEvent struct {
	TypedOfferHash    common.Hash    `json:"typed_offer_hash"`
	PoolID            common.Hash    `json:"pool_id"`
	Maker             common.Address `json:"maker"`
	Taker             common.Address `json:"taker"`
	TakerFilledAmount *big.Int       `json:"taker_filled_amount"`
}

type OfferCancelledEvent struct {
	TypedOfferHash common.Hash    `json:"typed_offer_hash"`
	Maker          common.Address `json:"maker"`
}

// PoolIssuedEvent records the instantiation of a pool by the first fill of a
// create-pool offer.
type PoolIssuedEvent struct {
	PoolID          common.Hash    `json:"pool_id"`
	Maker           common.Address `json:"maker"`
	Taker           common.Address `json:"taker"`
	CollateralToken common.Address `json:"collateral_token"`
}

// StatusChangedEvent records one settlement state transition. ProposedValue
// is informational: for challenges it carries the challenger's proposal,
// which is never stored on the pool.
type StatusChangedEvent struct {
	PoolID        common.Hash    `json:"pool_id"`
	Status        PoolStatus     `json:"status"`
	By            common.Address `json:"by"`
	ProposedValue *big.Int       `json:"proposed_value"`
}

type FeeClaimAllocatedEvent struct {
	PoolID          common.Hash    `json:"pool_id"`
	CollateralToken common.Address `json:"collateral_token"`
	Recipient       common.Address `json:"recipient"`
	Amount          *big.Int       `json:"amount"`
}

type PositionTokenRedeemedEvent struct {
	PoolID             common.Hash    `json:"pool_id"`
	PositionToken      common.Hash    `json:"position_token"`
	AmountRedeemed     *big.Int       `json:"amount_redeemed"`
	CollateralReturned *big.Int       `json:"collateral_returned"`
	ReturnedTo         common.Address `json:"returned_to"`
}
