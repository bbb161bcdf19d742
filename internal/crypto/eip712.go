// Package crypto provides EIP-712 typed hashing of signed offers, ECDSA
// signature recovery, and key management for the offer-signing CLI.
package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	offerCreateTypeHash = ethcrypto.Keccak256(
		[]byte("OfferCreateContingentPool(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,bool makerIsLong,uint256 offerExpiry,uint256 minimumTakerFillAmount,string referenceAsset,uint256 expiryTime,uint256 floor,uint256 inflection,uint256 cap,uint256 gradient,address collateralToken,address dataProvider,uint256 capacity,address permissionedERC721Token,uint256 salt)"),
	)

	offerAddTypeHash = ethcrypto.Keccak256(
		[]byte("OfferAddLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,bool makerIsLong,uint256 offerExpiry,uint256 minimumTakerFillAmount,bytes32 poolId,uint256 salt)"),
	)

	offerRemoveTypeHash = ethcrypto.Keccak256(
		[]byte("OfferRemoveLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 positionTokenAmount,bool makerIsLong,uint256 offerExpiry,uint256 minimumTakerFillAmount,bytes32 poolId,uint256 salt)"),
	)
)

// Domain identifies the signing domain for all offer variants: one fixed
// (name, version, chainId, verifying address) tuple per deployment.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address

	separator []byte // cached domain separator
}

// NewDomain builds a Domain and pre-computes its separator.
func NewDomain(name, version string, chainID int64, verifying common.Address) *Domain {
	d := &Domain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: verifying,
	}
	d.separator = ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(verifying.Bytes(), 32),
		),
	)
	return d
}

// TypedOfferHash computes the final EIP-712 digest identifying an offer:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func (d *Domain) TypedOfferHash(offer domain.Offer) common.Hash {
	structHash := offerStructHash(offer)
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes([]byte{0x19, 0x01}, d.separator, structHash),
	))
}

// offerStructHash encodes and hashes one offer according to its variant's
// EIP-712 schema. A per-offer salt keeps otherwise identical offers from
// colliding.
func offerStructHash(o domain.Offer) []byte {
	switch o.Kind {
	case domain.OfferKindCreate:
		t := o.Terms
		if t == nil {
			// Term-less create offers hash to the zero struct; validation
			// rejects them before the hash value matters.
			return make([]byte, 32)
		}
		return ethcrypto.Keccak256(
			concatBytes(
				offerCreateTypeHash,
				common.LeftPadBytes(o.Maker.Bytes(), 32),
				common.LeftPadBytes(o.Taker.Bytes(), 32),
				bigIntTo32Bytes(o.MakerCollateralAmount),
				bigIntTo32Bytes(o.TakerAmount),
				boolTo32Bytes(o.MakerIsLong),
				bigIntTo32Bytes(big.NewInt(o.OfferExpiry)),
				bigIntTo32Bytes(o.MinimumTakerFillAmount),
				ethcrypto.Keccak256([]byte(t.ReferenceAsset)),
				bigIntTo32Bytes(big.NewInt(t.ExpiryTime)),
				bigIntTo32Bytes(t.Floor),
				bigIntTo32Bytes(t.Inflection),
				bigIntTo32Bytes(t.Cap),
				bigIntTo32Bytes(t.Gradient),
				common.LeftPadBytes(t.CollateralToken.Bytes(), 32),
				common.LeftPadBytes(t.DataProvider.Bytes(), 32),
				bigIntTo32Bytes(t.Capacity),
				common.LeftPadBytes(t.PermissionToken.Bytes(), 32),
				bigIntTo32Bytes(o.Salt),
			),
		)
	case domain.OfferKindAdd:
		return liquidityStructHash(offerAddTypeHash, o)
	case domain.OfferKindRemove:
		return liquidityStructHash(offerRemoveTypeHash, o)
	default:
		// Unknown kinds hash to the zero struct; validation rejects them
		// before any signature check matters.
		return make([]byte, 32)
	}
}

func liquidityStructHash(typeHash []byte, o domain.Offer) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			typeHash,
			common.LeftPadBytes(o.Maker.Bytes(), 32),
			common.LeftPadBytes(o.Taker.Bytes(), 32),
			bigIntTo32Bytes(o.MakerCollateralAmount),
			bigIntTo32Bytes(o.TakerAmount),
			boolTo32Bytes(o.MakerIsLong),
			bigIntTo32Bytes(big.NewInt(o.OfferExpiry)),
			bigIntTo32Bytes(o.MinimumTakerFillAmount),
			o.PoolID.Bytes(),
			bigIntTo32Bytes(o.Salt),
		),
	)
}

// --------------------------------------------------------------------------
// Encoding helpers
// --------------------------------------------------------------------------

// bigIntTo32Bytes returns a 32-byte big-endian representation of n, treating
// nil as zero.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func boolTo32Bytes(b bool) []byte {
	out := make([]byte, 32)
	if b {
		out[31] = 1
	}
	return out
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
