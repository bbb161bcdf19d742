package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// archivePrefix is where the journal recorder parks flushed event batches.
// Keys served by this handler are relative to it.
const archivePrefix = "archive/events/"

// ArchiveHandler serves the cold event archive to operators: listing the
// JSONL batches the recorder has flushed, streaming a batch back, and
// pruning batches past their retention.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the archive bucket.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

type archiveBatchDTO struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListBatches returns the archived event batches, optionally narrowed to one
// year-month partition.
// GET /api/admin/archive?month=2026-08
func (h *ArchiveHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	prefix := archivePrefix
	if month := r.URL.Query().Get("month"); month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusBadRequest, "month must be formatted YYYY-MM")
			return
		}
		prefix += month + "/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive batches failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive batches")
		return
	}

	batches := make([]archiveBatchDTO, 0, len(infos))
	for _, info := range infos {
		batches = append(batches, archiveBatchDTO{
			Key:          strings.TrimPrefix(info.Path, archivePrefix),
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// GetBatch streams one archived batch back as it was stored.
// GET /api/admin/archive/{key...}
func (h *ArchiveHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	key, ok := batchKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid batch key")
		return
	}

	body, err := h.blobs.Get(r.Context(), archivePrefix+key)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; all we can do is note the broken stream.
		h.logger.WarnContext(r.Context(), "handler: archive batch stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteBatch prunes one archived batch. Deleting an absent batch succeeds,
// so retention jobs can retry blindly.
// DELETE /api/admin/archive/{key...}
func (h *ArchiveHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	key, ok := batchKey(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid batch key")
		return
	}

	if err := h.blobs.Delete(r.Context(), archivePrefix+key); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: delete archive batch failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete archive batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": key})
}

// batchKey extracts the batch key path segment and rejects anything that
// could escape the archive prefix.
func batchKey(r *http.Request) (string, bool) {
	key := pathParam(r, "key")
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
