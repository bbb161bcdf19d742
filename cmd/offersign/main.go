// Command offersign is the maker-side signing tool. It reads an offer JSON
// document, signs its EIP-712 typed hash under the configured domain, and
// prints the offer together with the signature, ready to POST to the engine's
// fill endpoint. It can also encrypt a raw private key for cold storage.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/config"
	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
)

// offerInput mirrors the engine's offer wire format: snake_case fields with
// amounts as decimal strings. A document signed here can be embedded verbatim
// in a fill request.
type offerInput struct {
	Kind                   string      `json:"kind"`
	Maker                  string      `json:"maker,omitempty"`
	Taker                  string      `json:"taker,omitempty"`
	MakerCollateralAmount  string      `json:"maker_collateral_amount"`
	TakerAmount            string      `json:"taker_amount"`
	MakerIsLong            bool        `json:"maker_is_long"`
	OfferExpiry            int64       `json:"offer_expiry"`
	MinimumTakerFillAmount string      `json:"minimum_taker_fill_amount"`
	Salt                   string      `json:"salt"`
	Terms                  *termsInput `json:"terms,omitempty"`
	PoolID                 string      `json:"pool_id,omitempty"`
}

type termsInput struct {
	ReferenceAsset  string `json:"reference_asset"`
	ExpiryTime      int64  `json:"expiry_time"`
	Floor           string `json:"floor"`
	Inflection      string `json:"inflection"`
	Cap             string `json:"cap"`
	Gradient        string `json:"gradient"`
	CollateralToken string `json:"collateral_token"`
	DataProvider    string `json:"data_provider"`
	Capacity        string `json:"capacity"`
	PermissionToken string `json:"permission_token,omitempty"`
}

type signedOutput struct {
	TypedOfferHash string     `json:"typed_offer_hash"`
	Maker          string     `json:"maker"`
	Offer          offerInput `json:"offer"`
	Signature      struct {
		V uint8  `json:"v"`
		R string `json:"r"`
		S string `json:"s"`
	} `json:"signature"`
}

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	offerPath := flag.String("offer", "-", "path to offer JSON document, or - for stdin")
	encryptOut := flag.String("encrypt-out", "", "encrypt wallet.private_key to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	if *encryptOut != "" {
		encryptKey(cfg, *encryptOut)
		return
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		fatal("load signing key: %v", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		fatal("create signer: %v", err)
	}

	in, err := readOffer(*offerPath)
	if err != nil {
		fatal("read offer: %v", err)
	}

	// The signer is the maker. An explicit maker in the document must match
	// the key, otherwise the signature would never verify.
	if in.Maker == "" {
		in.Maker = signer.Address().Hex()
	} else if !strings.EqualFold(in.Maker, signer.Address().Hex()) {
		fatal("offer maker %s does not match signing key address %s", in.Maker, signer.Address().Hex())
	}

	offer, err := in.toDomain()
	if err != nil {
		fatal("invalid offer: %v", err)
	}

	eip712 := crypto.NewDomain(
		cfg.Chain.DomainName,
		cfg.Chain.DomainVersion,
		cfg.Chain.ChainID,
		common.HexToAddress(cfg.Chain.VerifyingContract),
	)
	sig, err := signer.SignOffer(eip712, offer)
	if err != nil {
		fatal("sign offer: %v", err)
	}

	out := signedOutput{
		TypedOfferHash: eip712.TypedOfferHash(offer).Hex(),
		Maker:          in.Maker,
		Offer:          *in,
	}
	out.Signature.V = sig.V
	out.Signature.R = sig.R.Hex()
	out.Signature.S = sig.S.Hex()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal("encode output: %v", err)
	}
}

// encryptKey writes an encrypted key file from wallet.private_key, so the raw
// key can be removed from the config afterwards.
func encryptKey(cfg *config.Config, path string) {
	if cfg.Wallet.PrivateKey == "" {
		fatal("wallet.private_key is empty, nothing to encrypt")
	}
	if cfg.Wallet.KeyPassword == "" {
		fatal("wallet.key_password is required to encrypt")
	}
	blob, err := crypto.EncryptKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
	if err != nil {
		fatal("encrypt key: %v", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		fatal("write %s: %v", path, err)
	}
	fmt.Fprintf(os.Stderr, "encrypted key written to %s\n", path)
}

func readOffer(path string) (*offerInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var in offerInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *offerInput) toDomain() (domain.Offer, error) {
	var o domain.Offer

	switch domain.OfferKind(in.Kind) {
	case domain.OfferKindCreate, domain.OfferKindAdd, domain.OfferKindRemove:
		o.Kind = domain.OfferKind(in.Kind)
	default:
		return o, fmt.Errorf("kind must be one of %q, %q, %q",
			domain.OfferKindCreate, domain.OfferKindAdd, domain.OfferKindRemove)
	}

	var err error
	if o.Maker, err = addr("maker", in.Maker); err != nil {
		return o, err
	}
	if o.Taker, err = addr("taker", in.Taker); err != nil {
		return o, err
	}
	if o.MakerCollateralAmount, err = amount("maker_collateral_amount", in.MakerCollateralAmount); err != nil {
		return o, err
	}
	if o.TakerAmount, err = amount("taker_amount", in.TakerAmount); err != nil {
		return o, err
	}
	if o.MinimumTakerFillAmount, err = amount("minimum_taker_fill_amount", in.MinimumTakerFillAmount); err != nil {
		return o, err
	}
	if o.Salt, err = amount("salt", in.Salt); err != nil {
		return o, err
	}
	o.MakerIsLong = in.MakerIsLong
	o.OfferExpiry = in.OfferExpiry

	if o.Kind == domain.OfferKindCreate {
		if in.Terms == nil {
			return o, fmt.Errorf("terms is required for create offers")
		}
		t := &domain.PoolTerms{
			ReferenceAsset: in.Terms.ReferenceAsset,
			ExpiryTime:     in.Terms.ExpiryTime,
		}
		if t.Floor, err = amount("terms.floor", in.Terms.Floor); err != nil {
			return o, err
		}
		if t.Inflection, err = amount("terms.inflection", in.Terms.Inflection); err != nil {
			return o, err
		}
		if t.Cap, err = amount("terms.cap", in.Terms.Cap); err != nil {
			return o, err
		}
		if t.Gradient, err = amount("terms.gradient", in.Terms.Gradient); err != nil {
			return o, err
		}
		if t.Capacity, err = amount("terms.capacity", in.Terms.Capacity); err != nil {
			return o, err
		}
		if t.CollateralToken, err = addr("terms.collateral_token", in.Terms.CollateralToken); err != nil {
			return o, err
		}
		if t.DataProvider, err = addr("terms.data_provider", in.Terms.DataProvider); err != nil {
			return o, err
		}
		if t.PermissionToken, err = addr("terms.permission_token", in.Terms.PermissionToken); err != nil {
			return o, err
		}
		o.Terms = t
	} else {
		if len(in.PoolID) != 66 || !strings.HasPrefix(in.PoolID, "0x") {
			return o, fmt.Errorf("pool_id must be a 0x-prefixed 32-byte hex hash")
		}
		o.PoolID = common.HexToHash(in.PoolID)
	}

	return o, nil
}

func addr(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s must be a 0x-prefixed 20-byte hex address", field)
	}
	return common.HexToAddress(s), nil
}

func amount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal integer", field)
	}
	return v, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "offersign: "+format+"\n", args...)
	os.Exit(1)
}
