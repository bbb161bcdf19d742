package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// secp256k1HalfN is N/2 of the curve order; signatures with s above it are
// malleable and rejected (EIP-2 low-s rule).
var secp256k1HalfN = new(big.Int).Rsh(ethcrypto.S256().Params().N, 1)

// RecoverSigner recovers the address that produced the (v, r, s) triple over
// the given 32-byte digest. It fails with ErrInvalidSignatureFormat when v is
// outside {27, 28} or s is not low-order; it does NOT fail on a wrong signer.
// Callers compare the recovered address to the expected maker themselves, so
// validity can be read without aborting.
func RecoverSigner(digest common.Hash, sig domain.Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, domain.ErrInvalidSignatureFormat
	}
	s := new(big.Int).SetBytes(sig.S.Bytes())
	if s.Sign() == 0 || s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, domain.ErrInvalidSignatureFormat
	}

	raw := make([]byte, 65)
	copy(raw[0:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = sig.V - 27

	pub, err := ethcrypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, domain.ErrInvalidSignatureFormat
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
