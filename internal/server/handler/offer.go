package handler

import (
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/engine"
)

// relevantStateTTL is how long a derived offer state stays cached. Short,
// because the fillable amount tracks live maker balances.
const relevantStateTTL = 5 * time.Second

// OfferEngine defines the engine operations the offer handler requires.
type OfferEngine interface {
	FillOffer(caller common.Address, req engine.FillRequest) error
	FillOfferBatch(caller common.Address, reqs []engine.FillRequest) error
	CancelOffer(caller common.Address, offer domain.Offer) error
	OfferRelevantState(offer domain.Offer, sig domain.Signature) domain.OfferRelevantState
	TypedOfferHash(offer domain.Offer) common.Hash
}

// OfferHandler serves the offer fill, cancel, and state endpoints.
type OfferHandler struct {
	eng    OfferEngine
	cache  domain.OfferStateCache // optional
	logger *slog.Logger
}

// NewOfferHandler creates an OfferHandler. cache may be nil, in which case
// every state request derives fresh.
func NewOfferHandler(eng OfferEngine, cache domain.OfferStateCache, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		eng:    eng,
		cache:  cache,
		logger: logger,
	}
}

// fillRequestDTO is one fill instruction on the wire.
type fillRequestDTO struct {
	Offer           offerDTO     `json:"offer"`
	Signature       signatureDTO `json:"signature"`
	TakerFillAmount string       `json:"taker_fill_amount"`
}

func (d *fillRequestDTO) toDomain() (engine.FillRequest, error) {
	var req engine.FillRequest
	var err error
	if req.Offer, err = d.Offer.toDomain(); err != nil {
		return req, err
	}
	if req.Signature, err = d.Signature.toDomain(); err != nil {
		return req, err
	}
	if req.TakerFillAmount, err = parseBig("taker_fill_amount", d.TakerFillAmount); err != nil {
		return req, err
	}
	return req, nil
}

// Fill executes a single offer fill.
// POST /api/offers/fill
func (h *OfferHandler) Fill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string `json:"caller"`
		fillRequestDTO
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil || caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}
	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.FillOffer(caller, req); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	hash := h.eng.TypedOfferHash(req.Offer)
	h.invalidate(r, hash)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "filled",
		"typed_offer_hash": hash.Hex(),
	})
}

// FillBatch executes several fills as one all-or-nothing unit.
// POST /api/offers/fill-batch
func (h *OfferHandler) FillBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string           `json:"caller"`
		Fills  []fillRequestDTO `json:"fills"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil || caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}
	if len(body.Fills) == 0 {
		writeError(w, http.StatusBadRequest, "fills must not be empty")
		return
	}

	reqs := make([]engine.FillRequest, 0, len(body.Fills))
	for i := range body.Fills {
		req, err := body.Fills[i].toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reqs = append(reqs, req)
	}

	if err := h.eng.FillOfferBatch(caller, reqs); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	hashes := make([]string, 0, len(reqs))
	for i := range reqs {
		hash := h.eng.TypedOfferHash(reqs[i].Offer)
		h.invalidate(r, hash)
		hashes = append(hashes, hash.Hex())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "filled",
		"typed_offer_hashes": hashes,
	})
}

// Cancel permanently closes an offer. Maker-only, idempotent.
// POST /api/offers/cancel
func (h *OfferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string   `json:"caller"`
		Offer  offerDTO `json:"offer"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil || caller == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}
	offer, err := body.Offer.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.CancelOffer(caller, offer); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	hash := h.eng.TypedOfferHash(offer)
	h.invalidate(r, hash)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "cancelled",
		"typed_offer_hash": hash.Hex(),
	})
}

// RelevantState derives everything a taker wants to know before filling.
// POST with a body because the full offer and signature are the input.
// POST /api/offers/state
func (h *OfferHandler) RelevantState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Offer     offerDTO     `json:"offer"`
		Signature signatureDTO `json:"signature"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	offer, err := body.Offer.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sig, err := body.Signature.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash := h.eng.TypedOfferHash(offer)
	if h.cache != nil {
		if cached, err := h.cache.Get(r.Context(), hash); err == nil {
			writeJSON(w, http.StatusOK, relevantStateToDTO(cached))
			return
		}
	}

	state := h.eng.OfferRelevantState(offer, sig)

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), hash, cacheableState(state), relevantStateTTL); err != nil {
			h.logger.Warn("handler: offer state cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, relevantStateToDTO(state))
}

// invalidate drops any cached derived state for the offer after a mutation.
func (h *OfferHandler) invalidate(r *http.Request, hash common.Hash) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(r.Context(), hash); err != nil {
		h.logger.Warn("handler: offer state cache invalidate failed",
			slog.String("typed_offer_hash", hash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// cacheableState copies the state's amounts so the cached value does not
// alias engine-owned big.Ints.
func cacheableState(s domain.OfferRelevantState) domain.OfferRelevantState {
	cp := s
	if s.TakerFilledAmount != nil {
		cp.TakerFilledAmount = new(big.Int).Set(s.TakerFilledAmount)
	}
	if s.ActualTakerFillableAmount != nil {
		cp.ActualTakerFillableAmount = new(big.Int).Set(s.ActualTakerFillableAmount)
	}
	return cp
}
