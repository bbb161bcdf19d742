package crypto_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testDomain() *crypto.Domain {
	return crypto.NewDomain("DIVA Protocol", "1", 1, common.HexToAddress("0x0000000000000000000000000000000000000d1a"))
}

func sampleOffer(maker common.Address, salt int64) domain.Offer {
	return domain.Offer{
		Kind:                   domain.OfferKindCreate,
		Maker:                  maker,
		MakerCollateralAmount:  big.NewInt(20),
		TakerAmount:            big.NewInt(80),
		MakerIsLong:            true,
		OfferExpiry:            1_700_000_000,
		MinimumTakerFillAmount: big.NewInt(0),
		Salt:                   big.NewInt(salt),
		Terms: &domain.PoolTerms{
			ReferenceAsset:  "ETH/USD",
			ExpiryTime:      1_700_100_000,
			Floor:           big.NewInt(1500),
			Inflection:      big.NewInt(1600),
			Cap:             big.NewInt(1800),
			Gradient:        big.NewInt(5e17),
			CollateralToken: common.HexToAddress("0x1000000000000000000000000000000000000001"),
			DataProvider:    common.HexToAddress("0x2000000000000000000000000000000000000002"),
			Capacity:        big.NewInt(0),
		},
	}
}

func TestSignAndRecoverRoundtrip(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	d := testDomain()

	for _, kind := range []domain.OfferKind{domain.OfferKindCreate, domain.OfferKindAdd, domain.OfferKindRemove} {
		offer := sampleOffer(signer.Address(), 1)
		if kind != domain.OfferKindCreate {
			offer.Kind = kind
			offer.Terms = nil
			offer.PoolID = common.HexToHash("0xbeef")
		}

		sig, err := signer.SignOffer(d, offer)
		if err != nil {
			t.Fatalf("%s: sign: %v", kind, err)
		}
		if sig.V != 27 && sig.V != 28 {
			t.Errorf("%s: v = %d", kind, sig.V)
		}

		got, err := crypto.RecoverSigner(d.TypedOfferHash(offer), sig)
		if err != nil {
			t.Fatalf("%s: recover: %v", kind, err)
		}
		if got != signer.Address() {
			t.Errorf("%s: recovered %s, want %s", kind, got, signer.Address())
		}
	}
}

func TestTypedOfferHash_SensitiveToEveryField(t *testing.T) {
	d := testDomain()
	maker := common.HexToAddress("0x3000000000000000000000000000000000000003")
	base := d.TypedOfferHash(sampleOffer(maker, 1))

	mutations := map[string]func(*domain.Offer){
		"salt":        func(o *domain.Offer) { o.Salt = big.NewInt(2) },
		"taker amt":   func(o *domain.Offer) { o.TakerAmount = big.NewInt(81) },
		"maker side":  func(o *domain.Offer) { o.MakerIsLong = false },
		"taker":       func(o *domain.Offer) { o.Taker = maker },
		"floor":       func(o *domain.Offer) { o.Terms.Floor = big.NewInt(1501) },
		"ref asset":   func(o *domain.Offer) { o.Terms.ReferenceAsset = "BTC/USD" },
		"provider":    func(o *domain.Offer) { o.Terms.DataProvider = maker },
		"offer kind":  func(o *domain.Offer) { o.Kind = domain.OfferKindAdd; o.Terms = nil; o.PoolID = common.HexToHash("0x01") },
		"offerExpiry": func(o *domain.Offer) { o.OfferExpiry++ },
	}
	for name, mutate := range mutations {
		offer := sampleOffer(maker, 1)
		mutate(&offer)
		if d.TypedOfferHash(offer) == base {
			t.Errorf("%s: hash unchanged after mutation", name)
		}
	}

	// Same inputs, same hash.
	if d.TypedOfferHash(sampleOffer(maker, 1)) != base {
		t.Error("hash not deterministic")
	}
}

func TestTypedOfferHash_DomainSeparation(t *testing.T) {
	maker := common.HexToAddress("0x3000000000000000000000000000000000000003")
	offer := sampleOffer(maker, 1)

	base := testDomain().TypedOfferHash(offer)
	otherChain := crypto.NewDomain("DIVA Protocol", "1", 137, common.HexToAddress("0x0000000000000000000000000000000000000d1a"))
	if otherChain.TypedOfferHash(offer) == base {
		t.Error("chain id not bound into the digest")
	}
	otherName := crypto.NewDomain("Other Protocol", "1", 1, common.HexToAddress("0x0000000000000000000000000000000000000d1a"))
	if otherName.TypedOfferHash(offer) == base {
		t.Error("domain name not bound into the digest")
	}
}

func TestRecoverSigner_RejectsMalformedSignatures(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	d := testDomain()
	offer := sampleOffer(signer.Address(), 1)
	digest := d.TypedOfferHash(offer)
	sig, err := signer.SignOffer(d, offer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	badV := sig
	badV.V = 26
	if _, err := crypto.RecoverSigner(digest, badV); !errors.Is(err, domain.ErrInvalidSignatureFormat) {
		t.Errorf("v=26: err = %v", err)
	}

	// High-s mirror of a valid signature is the classic malleability attack;
	// the flipped form recovers the same signer on-curve but must be refused.
	n := ethcrypto.S256().Params().N
	highS := sig
	s := new(big.Int).SetBytes(sig.S.Bytes())
	highS.S = common.BigToHash(new(big.Int).Sub(n, s))
	highS.V = 27 + 28 - sig.V
	if _, err := crypto.RecoverSigner(digest, highS); !errors.Is(err, domain.ErrInvalidSignatureFormat) {
		t.Errorf("high s: err = %v", err)
	}

	zeroS := sig
	zeroS.S = common.Hash{}
	if _, err := crypto.RecoverSigner(digest, zeroS); !errors.Is(err, domain.ErrInvalidSignatureFormat) {
		t.Errorf("zero s: err = %v", err)
	}
}

func TestRecoverSigner_WrongSignerIsNotAnError(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	d := testDomain()
	offer := sampleOffer(signer.Address(), 1)
	sig, err := signer.SignOffer(d, offer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Recovering against a different offer's digest yields some other
	// address, not an error. The caller decides what that means.
	tampered := offer
	tampered.Salt = big.NewInt(99)
	got, err := crypto.RecoverSigner(d.TypedOfferHash(tampered), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got == signer.Address() {
		t.Error("tampered digest recovered the original signer")
	}
}
