package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OfferKind discriminates the three signed offer variants.
type OfferKind string

const (
	OfferKindCreate OfferKind = "create_contingent_pool"
	OfferKindAdd    OfferKind = "add_liquidity"
	OfferKindRemove OfferKind = "remove_liquidity"
)

// OfferStatus is the derived lifecycle state of an offer. Precedence when
// deriving: Invalid > Cancelled > Expired > Filled > Fillable.
type OfferStatus string

const (
	OfferStatusInvalid   OfferStatus = "invalid"
	OfferStatusCancelled OfferStatus = "cancelled"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusFilled    OfferStatus = "filled"
	OfferStatusFillable  OfferStatus = "fillable"
)

// PoolTerms is the term sheet embedded in a create-pool offer.
type PoolTerms struct {
	ReferenceAsset  string
	ExpiryTime      int64 // unix seconds
	Floor           *big.Int
	Inflection      *big.Int
	Cap             *big.Int
	Gradient        *big.Int // 1e18 scale, in [0, 1e18]
	CollateralToken common.Address
	DataProvider    common.Address
	Capacity        *big.Int
	PermissionToken common.Address // zero address = permissionless
}

// Offer is one off-chain-signed maker commitment. Immutable once signed;
// identified by its EIP-712 typed hash. Which amount fields are meaningful
// depends on Kind: TakerAmount is collateral for create/add and position
// tokens for remove.
type Offer struct {
	Kind OfferKind

	Maker                  common.Address
	Taker                  common.Address // zero address = open to anyone
	MakerCollateralAmount  *big.Int
	TakerAmount            *big.Int // takerCollateralAmount / positionTokenAmount
	MakerIsLong            bool
	OfferExpiry            int64 // unix seconds
	MinimumTakerFillAmount *big.Int
	Salt                   *big.Int

	// Create variant only.
	Terms *PoolTerms

	// Add/Remove variants only.
	PoolID common.Hash
}

// Signature is a raw ECDSA triple over the typed offer hash.
type Signature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// OfferRelevantState bundles everything a taker wants to know before filling.
// Read-only derivation; never errors on a wrong signature, it just reports
// IsSignatureValid=false.
type OfferRelevantState struct {
	TypedOfferHash            common.Hash
	Status                    OfferStatus
	TakerFilledAmount         *big.Int
	ActualTakerFillableAmount *big.Int
	IsSignatureValid          bool
	PoolExists                bool
}
