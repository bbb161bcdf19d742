// Package handler implements the HTTP endpoints of the protocol API. Every
// handler takes a narrow interface over the engine or a store, decodes the
// JSON body into domain types, and maps sentinel errors to HTTP status codes.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a protocol sentinel error onto an HTTP status code
// and sends the sentinel text as the error body. Unrecognized errors become
// an opaque 500; the detail goes to the log, not the client.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, known := httpStatusFor(err)
	if !known {
		logger.Error("handler: operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// httpStatusFor returns the HTTP status for a protocol sentinel and whether
// the error was recognized.
func httpStatusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrPoolNotFound),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidPositionToken):
		return http.StatusNotFound, true

	case errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrInvalidSignatureFormat):
		return http.StatusUnprocessableEntity, true

	case errors.Is(err, domain.ErrUnauthorizedTaker),
		errors.Is(err, domain.ErrMsgSenderNotMaker),
		errors.Is(err, domain.ErrNotDataProvider),
		errors.Is(err, domain.ErrNotFallbackDataProvider):
		return http.StatusForbidden, true

	case errors.Is(err, domain.ErrTakerFillAmountSmallerMinimum),
		errors.Is(err, domain.ErrTakerFillAmountExceedsFillable),
		errors.Is(err, domain.ErrNoPositionTokens),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		return http.StatusBadRequest, true

	case errors.Is(err, domain.ErrOfferInvalidCancelledFilledOrExpired),
		errors.Is(err, domain.ErrPoolNotExpired),
		errors.Is(err, domain.ErrPoolExpired),
		errors.Is(err, domain.ErrAlreadySubmittedOrConfirmed),
		errors.Is(err, domain.ErrChallengePeriodExpired),
		errors.Is(err, domain.ErrReviewPeriodExpired),
		errors.Is(err, domain.ErrChallengePeriodNotExpired),
		errors.Is(err, domain.ErrReviewPeriodNotExpired),
		errors.Is(err, domain.ErrNothingToChallenge),
		errors.Is(err, domain.ErrFinalReferenceValueNotSet),
		errors.Is(err, domain.ErrReturnCollateralPaused):
		return http.StatusConflict, true
	}
	return 0, false
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// decodeBody unmarshals the request body into dst, rejecting unknown fields
// so clients notice typos in amount field names instead of silently sending
// zero.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
