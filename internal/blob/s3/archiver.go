package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// defaultFlushThreshold is the number of buffered events that triggers an
// automatic flush from Append.
const defaultFlushThreshold = 500

// Archiver implements domain.EventArchiver by buffering protocol events in
// memory and flushing them to object storage as newline-delimited JSON
// batches. Postgres holds the queryable journal; the archive is the cheap,
// append-only cold copy.
//
// Batches are keyed by flush time:
//
//	archive/events/2026-08/20260831T120000Z-<n>.jsonl
type Archiver struct {
	writer domain.BlobWriter
	now    func() time.Time

	mu        sync.Mutex
	buf       []domain.Event
	threshold int
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{
		writer:    writer,
		now:       time.Now,
		threshold: defaultFlushThreshold,
	}
}

// Append buffers one event. When the buffer reaches the flush threshold the
// accumulated batch is uploaded synchronously.
func (a *Archiver) Append(ctx context.Context, ev domain.Event) error {
	a.mu.Lock()
	a.buf = append(a.buf, ev)
	full := len(a.buf) >= a.threshold
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Flush uploads all buffered events as one JSONL object and clears the
// buffer. A failed upload leaves the events buffered for the next attempt.
// Flushing an empty buffer is a no-op.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath(a.now(), len(batch))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		a.mu.Lock()
		a.buf = append(batch, a.buf...)
		a.mu.Unlock()
		return fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	return nil
}

// archivePath builds the S3 key for an event batch, partitioned by the
// year-month of the flush time.
func archivePath(at time.Time, count int) string {
	at = at.UTC()
	return fmt.Sprintf("archive/events/%s/%s-%d.jsonl",
		at.Format("2006-01"), at.Format("20060102T150405Z"), count)
}

// marshalJSONL serialises a slice of events as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL(events []domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("jsonl encode event %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.EventArchiver = (*Archiver)(nil)
