package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// GovernanceRegistry defines the registry mutations exposed on the admin
// surface, plus the reads needed to echo the resulting parameters back.
type GovernanceRegistry interface {
	domain.Governance
	AppendFees(f domain.Fees)
	AppendSettlementPeriods(p domain.SettlementPeriods)
	SetTreasury(addr common.Address, activateAt int64)
	SetFallbackDataProvider(addr common.Address, activateAt int64)
	PauseReturnCollateral(until int64)
}

// GovernanceHandler serves the token-guarded admin endpoints mutating
// protocol parameters. Changes append to the history or schedule delayed
// activation; they never rewrite what existing pools pinned.
type GovernanceHandler struct {
	reg    GovernanceRegistry
	logger *slog.Logger
}

// NewGovernanceHandler creates a GovernanceHandler over the registry.
func NewGovernanceHandler(reg GovernanceRegistry, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		reg:    reg,
		logger: logger,
	}
}

// GetParams returns the currently pinned fee and period entries and the
// active addresses.
// GET /api/admin/params
func (h *GovernanceHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	feesIdx := h.reg.CurrentFeesIndex()
	periodsIdx := h.reg.CurrentSettlementPeriodsIndex()
	fees := h.reg.Fees(feesIdx)
	periods := h.reg.SettlementPeriods(periodsIdx)

	writeJSON(w, http.StatusOK, map[string]any{
		"fees_index": feesIdx,
		"fees": map[string]string{
			"protocol_fee":   bigStr(fees.ProtocolFee),
			"settlement_fee": bigStr(fees.SettlementFee),
		},
		"periods_index": periodsIdx,
		"periods": map[string]int64{
			"submission_period":          periods.SubmissionPeriod,
			"challenge_period":           periods.ChallengePeriod,
			"review_period":              periods.ReviewPeriod,
			"fallback_submission_period": periods.FallbackSubmissionPeriod,
		},
		"paused_until": h.reg.ReturnCollateralPausedUntil(),
	})
}

// AppendFees appends a new fee entry; pools created from now on pin it.
// POST /api/admin/fees
func (h *GovernanceHandler) AppendFees(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProtocolFee   string `json:"protocol_fee"`
		SettlementFee string `json:"settlement_fee"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	protocol, err := parseBig("protocol_fee", body.ProtocolFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settlement, err := parseBig("settlement_fee", body.SettlementFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.reg.AppendFees(domain.Fees{ProtocolFee: protocol, SettlementFee: settlement})
	h.logger.Info("governance: fees appended",
		slog.String("protocol_fee", protocol.String()),
		slog.String("settlement_fee", settlement.String()),
	)
	writeJSON(w, http.StatusOK, map[string]any{"fees_index": h.reg.CurrentFeesIndex()})
}

// AppendPeriods appends a new settlement period entry.
// POST /api/admin/periods
func (h *GovernanceHandler) AppendPeriods(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SubmissionPeriod         int64 `json:"submission_period"`
		ChallengePeriod          int64 `json:"challenge_period"`
		ReviewPeriod             int64 `json:"review_period"`
		FallbackSubmissionPeriod int64 `json:"fallback_submission_period"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.SubmissionPeriod <= 0 || body.ChallengePeriod <= 0 ||
		body.ReviewPeriod <= 0 || body.FallbackSubmissionPeriod <= 0 {
		writeError(w, http.StatusBadRequest, "all periods must be positive seconds")
		return
	}

	h.reg.AppendSettlementPeriods(domain.SettlementPeriods{
		SubmissionPeriod:         body.SubmissionPeriod,
		ChallengePeriod:          body.ChallengePeriod,
		ReviewPeriod:             body.ReviewPeriod,
		FallbackSubmissionPeriod: body.FallbackSubmissionPeriod,
	})
	h.logger.Info("governance: settlement periods appended",
		slog.Int64("submission_period", body.SubmissionPeriod),
		slog.Int64("challenge_period", body.ChallengePeriod),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"periods_index": h.reg.CurrentSettlementPeriodsIndex(),
	})
}

// SetTreasury schedules a treasury address change with delayed activation.
// POST /api/admin/treasury
func (h *GovernanceHandler) SetTreasury(w http.ResponseWriter, r *http.Request) {
	h.scheduleAddress(w, r, "treasury", h.reg.SetTreasury)
}

// SetFallbackProvider schedules a fallback data provider change.
// POST /api/admin/fallback-provider
func (h *GovernanceHandler) SetFallbackProvider(w http.ResponseWriter, r *http.Request) {
	h.scheduleAddress(w, r, "fallback data provider", h.reg.SetFallbackDataProvider)
}

func (h *GovernanceHandler) scheduleAddress(w http.ResponseWriter, r *http.Request, what string, set func(common.Address, int64)) {
	var body struct {
		Address    string `json:"address"`
		ActivateAt int64  `json:"activate_at"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	addr, err := parseAddress("address", body.Address)
	if err != nil || addr == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if body.ActivateAt <= 0 {
		writeError(w, http.StatusBadRequest, "activate_at must be a positive unix time")
		return
	}

	set(addr, body.ActivateAt)
	h.logger.Info("governance: address change scheduled",
		slog.String("what", what),
		slog.String("address", addr.Hex()),
		slog.Int64("activate_at", body.ActivateAt),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "scheduled",
		"address":     addr.Hex(),
		"activate_at": body.ActivateAt,
	})
}

// PauseReturnCollateral suspends collateral-returning operations until the
// given unix time. A zero or past time lifts the pause.
// POST /api/admin/pause
func (h *GovernanceHandler) PauseReturnCollateral(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Until int64 `json:"until"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Until < 0 {
		writeError(w, http.StatusBadRequest, "until must not be negative")
		return
	}

	h.reg.PauseReturnCollateral(body.Until)
	h.logger.Info("governance: return collateral pause set",
		slog.Int64("until", body.Until),
	)
	writeJSON(w, http.StatusOK, map[string]any{"paused_until": body.Until})
}
