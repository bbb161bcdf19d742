package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// PoolEngine defines the engine operations the pool handler requires.
type PoolEngine interface {
	GetPool(id common.Hash) (domain.Pool, error)
	SubmitFinalReferenceValue(caller common.Address, poolID common.Hash, value *big.Int, allowChallenge bool) error
	ChallengeFinalReferenceValue(caller common.Address, poolID common.Hash, proposedValue *big.Int) error
	Finalize(poolID common.Hash) error
}

// PoolHandler serves pool reads and the settlement endpoints.
type PoolHandler struct {
	eng    PoolEngine
	pools  domain.PoolStore
	logger *slog.Logger
}

// NewPoolHandler creates a PoolHandler. Reads of a single pool go to the
// engine (authoritative in-memory state); list queries go to the store.
func NewPoolHandler(eng PoolEngine, pools domain.PoolStore, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{
		eng:    eng,
		pools:  pools,
		logger: logger,
	}
}

// GetPool returns one pool by id.
// GET /api/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pool, err := h.eng.GetPool(id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, poolToDTO(pool))
}

// ListPools returns a page of pools from the store.
// GET /api/pools?limit=50&offset=0
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	pools, err := h.pools.ListAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pools failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pools")
		return
	}

	page := paginatePools(pools, opts)
	out := make([]poolDTO, 0, len(page))
	for _, p := range page {
		out = append(out, poolToDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pools": out,
		"total": len(pools),
	})
}

// SubmitFinalValue submits (or force-settles) a pool's final reference value.
// POST /api/pools/{id}/final-value
func (h *PoolHandler) SubmitFinalValue(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Caller         string `json:"caller"`
		Value          string `json:"value"`
		AllowChallenge bool   `json:"allow_challenge"`
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
	value, err := parseBig("value", body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.SubmitFinalReferenceValue(caller, id, value, body.AllowChallenge); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.respondWithPool(r.Context(), w, id)
}

// Challenge contests a submitted final reference value.
// POST /api/pools/{id}/challenge
func (h *PoolHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Caller        string `json:"caller"`
		ProposedValue string `json:"proposed_value"`
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
	proposed, err := parseBig("proposed_value", body.ProposedValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.ChallengeFinalReferenceValue(caller, id, proposed); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.respondWithPool(r.Context(), w, id)
}

// Finalize runs the idempotent lazy-confirmation path explicitly.
// POST /api/pools/{id}/finalize
func (h *PoolHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.Finalize(id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.respondWithPool(r.Context(), w, id)
}

// respondWithPool sends the pool's post-operation state so clients see the
// transition they caused without a second round trip.
func (h *PoolHandler) respondWithPool(ctx context.Context, w http.ResponseWriter, id common.Hash) {
	pool, err := h.eng.GetPool(id)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: pool readback failed",
			slog.String("pool_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "operation applied but readback failed")
		return
	}
	writeJSON(w, http.StatusOK, poolToDTO(pool))
}

func paginatePools(pools []domain.Pool, opts domain.ListOpts) []domain.Pool {
	if opts.Offset >= len(pools) {
		return nil
	}
	end := opts.Offset + opts.Limit
	if end > len(pools) {
		end = len(pools)
	}
	return pools[opts.Offset:end]
}
