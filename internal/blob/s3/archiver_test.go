package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

type fakeBlobWriter struct {
	puts []putCall
	err  error
}

type putCall struct {
	path        string
	contentType string
	body        []byte
}

func (w *fakeBlobWriter) Put(_ context.Context, path string, r io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, putCall{path: path, contentType: contentType, body: body})
	return nil
}

func testArchiver(w *fakeBlobWriter, threshold int) *Archiver {
	a := NewArchiver(w)
	a.threshold = threshold
	a.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	return a
}

func ev(id string) domain.Event {
	return domain.Event{ID: id, Type: domain.EventPoolIssued}
}

func TestArchiver_FlushWritesJSONLBatch(t *testing.T) {
	w := &fakeBlobWriter{}
	a := testArchiver(w, 100)

	for _, id := range []string{"a", "b", "c"} {
		if err := a.Append(context.Background(), ev(id)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if len(w.puts) != 0 {
		t.Fatalf("premature upload: %d puts before threshold or flush", len(w.puts))
	}

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.puts) != 1 {
		t.Fatalf("got %d puts, want 1", len(w.puts))
	}

	put := w.puts[0]
	if put.path != "archive/events/2026-08/20260831T120000Z-3.jsonl" {
		t.Fatalf("unexpected path %q", put.path)
	}
	if put.contentType != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", put.contentType)
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(put.body))
	for sc.Scan() {
		var e domain.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("got event ids %v, want [a b c]", ids)
	}
}

func TestArchiver_AppendFlushesAtThreshold(t *testing.T) {
	w := &fakeBlobWriter{}
	a := testArchiver(w, 2)

	if err := a.Append(context.Background(), ev("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append(context.Background(), ev("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(w.puts) != 1 {
		t.Fatalf("got %d puts after threshold, want 1", len(w.puts))
	}
}

func TestArchiver_FlushEmptyIsNoop(t *testing.T) {
	w := &fakeBlobWriter{}
	a := testArchiver(w, 2)

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.puts) != 0 {
		t.Fatalf("empty flush uploaded %d batches", len(w.puts))
	}
}

func TestArchiver_FailedUploadKeepsEventsBuffered(t *testing.T) {
	w := &fakeBlobWriter{err: errors.New("bucket gone")}
	a := testArchiver(w, 100)

	if err := a.Append(context.Background(), ev("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("Flush: expected upload error")
	}

	// The writer recovers; the buffered event goes out on the next flush.
	w.err = nil
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after recovery: %v", err)
	}
	if len(w.puts) != 1 {
		t.Fatalf("got %d puts after recovery, want 1", len(w.puts))
	}
}
