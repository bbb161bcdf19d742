package handler

import (
	"log/slog"
	"net/http"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// EventHandler serves the protocol event journal.
type EventHandler struct {
	events domain.EventStore
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler over the event store.
func NewEventHandler(events domain.EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// ListRecent returns the newest events first.
// GET /api/events?limit=50&offset=0
func (h *EventHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.events.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
