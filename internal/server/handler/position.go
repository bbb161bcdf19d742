package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// PositionEngine defines the engine operations the position handler requires.
type PositionEngine interface {
	RedeemPositionToken(caller common.Address, token common.Hash, amount *big.Int) error
	GetClaim(token common.Address, recipient common.Address) *big.Int
}

// PositionHandler serves redemption and fee claim endpoints.
type PositionHandler struct {
	eng    PositionEngine
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(eng PositionEngine, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		eng:    eng,
		logger: logger,
	}
}

// Redeem burns position tokens held by the caller and pays out the confirmed
// per-token rate. Triggers lazy confirmation when the pool is still pending.
// POST /api/redeem
func (h *PositionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller        string `json:"caller"`
		PositionToken string `json:"position_token"`
		Amount        string `json:"amount"`
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
	token, err := parseHash("position_token", body.PositionToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBig("amount", body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.eng.RedeemPositionToken(caller, token, amount); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "redeemed",
		"position_token":  token.Hex(),
		"amount_redeemed": amount.String(),
	})
}

// GetClaim returns the claimable fee balance for a (collateral token,
// recipient) pair. A never-credited pair reads as zero.
// GET /api/claims/{token}/{recipient}
func (h *PositionHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	token, err := parseAddress("token", pathParam(r, "token"))
	if err != nil || token == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "token must be a 0x-prefixed 20-byte hex address")
		return
	}
	recipient, err := parseAddress("recipient", pathParam(r, "recipient"))
	if err != nil || recipient == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "recipient must be a 0x-prefixed 20-byte hex address")
		return
	}

	amount := h.eng.GetClaim(token, recipient)
	writeJSON(w, http.StatusOK, map[string]any{
		"collateral_token": token.Hex(),
		"recipient":        recipient.Hex(),
		"amount":           bigStr(amount),
	})
}
