package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// Signer produces maker-side offer signatures. The engine itself never
// signs; this exists for the offersign CLI and for tests that need real
// recoverable signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOffer computes the typed offer hash under the given domain and signs
// it, returning the (v, r, s) triple with v in {27, 28}.
func (s *Signer) SignOffer(d *Domain, offer domain.Offer) (domain.Signature, error) {
	digest := d.TypedOfferHash(offer)

	sig, err := ethcrypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; typed-data signatures carry {27,28}.
	v := sig[64]
	if v < 27 {
		v += 27
	}
	return domain.Signature{
		V: v,
		R: common.BytesToHash(sig[0:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}
