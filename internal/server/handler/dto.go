package handler

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// Amounts travel as decimal strings. 256-bit integers do not survive JSON
// numbers, and hex would push base conversions onto every client.

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal integer", field)
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s must be a 0x-prefixed 20-byte hex address", field)
	}
	return common.HexToAddress(s), nil
}

func parseHash(field, s string) (common.Hash, error) {
	if len(s) != 66 || s[:2] != "0x" {
		return common.Hash{}, fmt.Errorf("%s must be a 0x-prefixed 32-byte hex hash", field)
	}
	b, err := common.ParseHexOrString(s)
	if err != nil || len(b) != 32 {
		return common.Hash{}, fmt.Errorf("%s must be a 0x-prefixed 32-byte hex hash", field)
	}
	return common.BytesToHash(b), nil
}

// poolTermsDTO mirrors domain.PoolTerms on the wire.
type poolTermsDTO struct {
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

func (d *poolTermsDTO) toDomain() (*domain.PoolTerms, error) {
	t := &domain.PoolTerms{
		ReferenceAsset: d.ReferenceAsset,
		ExpiryTime:     d.ExpiryTime,
	}
	var err error
	if t.Floor, err = parseBig("terms.floor", d.Floor); err != nil {
		return nil, err
	}
	if t.Inflection, err = parseBig("terms.inflection", d.Inflection); err != nil {
		return nil, err
	}
	if t.Cap, err = parseBig("terms.cap", d.Cap); err != nil {
		return nil, err
	}
	if t.Gradient, err = parseBig("terms.gradient", d.Gradient); err != nil {
		return nil, err
	}
	if t.Capacity, err = parseBig("terms.capacity", d.Capacity); err != nil {
		return nil, err
	}
	if t.CollateralToken, err = parseAddress("terms.collateral_token", d.CollateralToken); err != nil {
		return nil, err
	}
	if t.DataProvider, err = parseAddress("terms.data_provider", d.DataProvider); err != nil {
		return nil, err
	}
	if t.PermissionToken, err = parseAddress("terms.permission_token", d.PermissionToken); err != nil {
		return nil, err
	}
	return t, nil
}

// offerDTO mirrors domain.Offer on the wire. Terms is required for create
// offers, pool_id for add/remove.
type offerDTO struct {
	Kind                   string        `json:"kind"`
	Maker                  string        `json:"maker"`
	Taker                  string        `json:"taker,omitempty"`
	MakerCollateralAmount  string        `json:"maker_collateral_amount"`
	TakerAmount            string        `json:"taker_amount"`
	MakerIsLong            bool          `json:"maker_is_long"`
	OfferExpiry            int64         `json:"offer_expiry"`
	MinimumTakerFillAmount string        `json:"minimum_taker_fill_amount"`
	Salt                   string        `json:"salt"`
	Terms                  *poolTermsDTO `json:"terms,omitempty"`
	PoolID                 string        `json:"pool_id,omitempty"`
}

func (d *offerDTO) toDomain() (domain.Offer, error) {
	var o domain.Offer

	switch domain.OfferKind(d.Kind) {
	case domain.OfferKindCreate, domain.OfferKindAdd, domain.OfferKindRemove:
		o.Kind = domain.OfferKind(d.Kind)
	default:
		return o, fmt.Errorf("kind must be one of %q, %q, %q",
			domain.OfferKindCreate, domain.OfferKindAdd, domain.OfferKindRemove)
	}

	var err error
	if o.Maker, err = parseAddress("maker", d.Maker); err != nil {
		return o, err
	}
	if o.Maker == (common.Address{}) {
		return o, fmt.Errorf("maker is required")
	}
	if o.Taker, err = parseAddress("taker", d.Taker); err != nil {
		return o, err
	}
	if o.MakerCollateralAmount, err = parseBig("maker_collateral_amount", d.MakerCollateralAmount); err != nil {
		return o, err
	}
	if o.TakerAmount, err = parseBig("taker_amount", d.TakerAmount); err != nil {
		return o, err
	}
	if o.MinimumTakerFillAmount, err = parseBig("minimum_taker_fill_amount", d.MinimumTakerFillAmount); err != nil {
		return o, err
	}
	if o.Salt, err = parseBig("salt", d.Salt); err != nil {
		return o, err
	}
	o.MakerIsLong = d.MakerIsLong
	o.OfferExpiry = d.OfferExpiry

	if o.Kind == domain.OfferKindCreate {
		if d.Terms == nil {
			return o, fmt.Errorf("terms is required for create offers")
		}
		if o.Terms, err = d.Terms.toDomain(); err != nil {
			return o, err
		}
	} else {
		if o.PoolID, err = parseHash("pool_id", d.PoolID); err != nil {
			return o, err
		}
	}
	return o, nil
}

// signatureDTO mirrors domain.Signature on the wire.
type signatureDTO struct {
	V uint8  `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

func (d *signatureDTO) toDomain() (domain.Signature, error) {
	var sig domain.Signature
	var err error
	if sig.R, err = parseHash("signature.r", d.R); err != nil {
		return sig, err
	}
	if sig.S, err = parseHash("signature.s", d.S); err != nil {
		return sig, err
	}
	sig.V = d.V
	return sig, nil
}

// poolDTO is the read-side rendering of a pool.
type poolDTO struct {
	ID              string `json:"id"`
	ReferenceAsset  string `json:"reference_asset"`
	ExpiryTime      int64  `json:"expiry_time"`
	Floor           string `json:"floor"`
	Inflection      string `json:"inflection"`
	Cap             string `json:"cap"`
	Gradient        string `json:"gradient"`
	CollateralToken string `json:"collateral_token"`
	DataProvider    string `json:"data_provider"`
	Capacity        string `json:"capacity"`
	PermissionToken string `json:"permission_token"`

	CollateralBalance string `json:"collateral_balance"`
	LongToken         string `json:"long_token"`
	ShortToken        string `json:"short_token"`

	IndexFees              int `json:"index_fees"`
	IndexSettlementPeriods int `json:"index_settlement_periods"`

	Status              string `json:"status"`
	StatusTimestamp     int64  `json:"status_timestamp"`
	FinalReferenceValue string `json:"final_reference_value"`
	FinalValueSubmitter string `json:"final_value_submitter,omitempty"`
	PayoutLong          string `json:"payout_long"`
	PayoutShort         string `json:"payout_short"`
}

func poolToDTO(p domain.Pool) poolDTO {
	dto := poolDTO{
		ID:                     p.ID.Hex(),
		ReferenceAsset:         p.ReferenceAsset,
		ExpiryTime:             p.ExpiryTime,
		Floor:                  bigStr(p.Floor),
		Inflection:             bigStr(p.Inflection),
		Cap:                    bigStr(p.Cap),
		Gradient:               bigStr(p.Gradient),
		CollateralToken:        p.CollateralToken.Hex(),
		DataProvider:           p.DataProvider.Hex(),
		Capacity:               bigStr(p.Capacity),
		PermissionToken:        p.PermissionToken.Hex(),
		CollateralBalance:      bigStr(p.CollateralBalance),
		LongToken:              p.LongToken.Hex(),
		ShortToken:             p.ShortToken.Hex(),
		IndexFees:              p.IndexFees,
		IndexSettlementPeriods: p.IndexSettlementPeriods,
		Status:                 string(p.StatusFinalReferenceValue),
		StatusTimestamp:        p.StatusTimestamp,
		FinalReferenceValue:    bigStr(p.FinalReferenceValue),
		PayoutLong:             bigStr(p.PayoutLong),
		PayoutShort:            bigStr(p.PayoutShort),
	}
	if p.FinalValueSubmitter != (common.Address{}) {
		dto.FinalValueSubmitter = p.FinalValueSubmitter.Hex()
	}
	return dto
}

// relevantStateDTO is the read-side rendering of an offer's derived state.
type relevantStateDTO struct {
	TypedOfferHash            string `json:"typed_offer_hash"`
	Status                    string `json:"status"`
	TakerFilledAmount         string `json:"taker_filled_amount"`
	ActualTakerFillableAmount string `json:"actual_taker_fillable_amount"`
	IsSignatureValid          bool   `json:"is_signature_valid"`
	PoolExists                bool   `json:"pool_exists"`
}

func relevantStateToDTO(s domain.OfferRelevantState) relevantStateDTO {
	return relevantStateDTO{
		TypedOfferHash:            s.TypedOfferHash.Hex(),
		Status:                    string(s.Status),
		TakerFilledAmount:         bigStr(s.TakerFilledAmount),
		ActualTakerFillableAmount: bigStr(s.ActualTakerFillableAmount),
		IsSignatureValid:          s.IsSignatureValid,
		PoolExists:                s.PoolExists,
	}
}
