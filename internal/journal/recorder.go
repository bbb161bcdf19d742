// Package journal fans committed protocol events out to the durable stores
// and the live distribution paths: the Postgres event journal, write-through
// snapshots of pools, fill records, and fee claims, the Redis bus feeding the
// WebSocket hub, and the S3 cold archive.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

const (
	// queueSize bounds the hand-off buffer between the engine's sink and the
	// recorder's worker. The sink runs under the engine's operation lock, so
	// it must never block.
	queueSize = 1024

	// ChannelEvents is the Redis pub/sub channel carrying every event.
	ChannelEvents = "ch:events"

	// StreamEvents is the Redis stream holding the bounded hot tail.
	StreamEvents = "stream:events"
)

// flushTimeout caps shutdown draining and the final archive flush.
const flushTimeout = 10 * time.Second

// SnapshotSource reads current protocol state for write-through persistence.
// The engine implements it.
type SnapshotSource interface {
	GetPool(id common.Hash) (domain.Pool, error)
	GetFillRecord(typedOfferHash common.Hash) domain.FillRecord
	GetClaim(token common.Address, recipient common.Address) *big.Int
}

// Recorder consumes engine events asynchronously and records each one in
// every configured destination. Stores are required; bus and archiver are
// optional and skipped when nil.
type Recorder struct {
	src    SnapshotSource
	events domain.EventStore
	pools  domain.PoolStore
	fills  domain.FillStore
	claims domain.ClaimStore

	bus      domain.EventBus
	archiver domain.EventArchiver
	logger   *slog.Logger

	queue chan domain.Event
}

// Options configures the optional recorder destinations.
type Options struct {
	Bus      domain.EventBus
	Archiver domain.EventArchiver
	Logger   *slog.Logger
}

// New creates a Recorder writing through to the given stores.
func New(src SnapshotSource, events domain.EventStore, pools domain.PoolStore, fills domain.FillStore, claims domain.ClaimStore, opts Options) *Recorder {
	r := &Recorder{
		src:      src,
		events:   events,
		pools:    pools,
		fills:    fills,
		claims:   claims,
		bus:      opts.Bus,
		archiver: opts.Archiver,
		logger:   opts.Logger,
		queue:    make(chan domain.Event, queueSize),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Sink returns the function to install as the engine's event sink. It
// enqueues without blocking; if the recorder falls more than the queue size
// behind, events are dropped from the live paths with a warning. The dropped
// events are still recoverable from state snapshots on the next write.
func (r *Recorder) Sink() func(domain.Event) {
	return func(ev domain.Event) {
		select {
		case r.queue <- ev:
		default:
			r.logger.Warn("journal: queue full, dropping event",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
			)
		}
	}
}

// Run consumes the queue until the context is cancelled, then drains whatever
// is already enqueued and flushes the archiver.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			if r.archiver != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				defer cancel()
				if err := r.archiver.Flush(flushCtx); err != nil {
					r.logger.Error("journal: final archive flush failed",
						slog.String("error", err.Error()),
					)
				}
			}
			return ctx.Err()

		case ev := <-r.queue:
			r.record(ctx, ev)
		}
	}
}

// drain records the events still queued at shutdown, using a background
// context so in-flight work is not cut off mid-write.
func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.record(ctx, ev)
		default:
			return
		}
	}
}

// record writes one event everywhere. Destinations are independent: a
// failure in one is logged and does not stop the others, so a Redis outage
// cannot take down the Postgres journal.
func (r *Recorder) record(ctx context.Context, ev domain.Event) {
	if err := r.events.Insert(ctx, ev); err != nil {
		r.logger.Error("journal: event insert failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}

	if err := r.writeThrough(ctx, ev); err != nil {
		r.logger.Error("journal: snapshot write-through failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}

	if r.bus != nil {
		r.publish(ctx, ev)
	}

	if r.archiver != nil {
		if err := r.archiver.Append(ctx, ev); err != nil {
			r.logger.Error("journal: archive append failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// publish pushes the JSON-encoded event onto the pub/sub channels and the
// bounded stream. Each event goes to the firehose channel and to a per-type
// channel so clients can subscribe narrowly.
func (r *Recorder) publish(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("journal: event marshal failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.bus.Publish(ctx, ChannelEvents, data); err != nil {
		r.logger.Warn("journal: publish failed", slog.String("error", err.Error()))
	}
	if err := r.bus.Publish(ctx, ChannelEvents+":"+string(ev.Type), data); err != nil {
		r.logger.Warn("journal: typed publish failed", slog.String("error", err.Error()))
	}
	if err := r.bus.StreamAppend(ctx, StreamEvents, data); err != nil {
		r.logger.Warn("journal: stream append failed", slog.String("error", err.Error()))
	}
}

// writeThrough persists the state snapshots the event implies: the pool it
// touched, the fill record it advanced, or the claim it credited. Snapshots
// are read back from the engine rather than carried on the event, so the
// stored row always reflects the committed state even after queueing delays.
func (r *Recorder) writeThrough(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventOfferFilled:
		p := ev.OfferFilled
		rec := r.src.GetFillRecord(p.TypedOfferHash)
		if err := r.fills.Upsert(ctx, p.TypedOfferHash, rec); err != nil {
			return fmt.Errorf("fill record %s: %w", p.TypedOfferHash, err)
		}
		return r.upsertPool(ctx, p.PoolID)

	case domain.EventOfferCancelled:
		p := ev.OfferCancelled
		rec := r.src.GetFillRecord(p.TypedOfferHash)
		if err := r.fills.Upsert(ctx, p.TypedOfferHash, rec); err != nil {
			return fmt.Errorf("fill record %s: %w", p.TypedOfferHash, err)
		}
		return nil

	case domain.EventPoolIssued:
		return r.upsertPool(ctx, ev.PoolIssued.PoolID)

	case domain.EventStatusChanged:
		return r.upsertPool(ctx, ev.StatusChanged.PoolID)

	case domain.EventFeeClaimAllocated:
		p := ev.FeeClaimAllocated
		claim := domain.FeeClaim{
			CollateralToken: p.CollateralToken,
			Recipient:       p.Recipient,
			Amount:          r.src.GetClaim(p.CollateralToken, p.Recipient),
		}
		if err := r.claims.Upsert(ctx, claim); err != nil {
			return fmt.Errorf("claim %s/%s: %w", p.CollateralToken, p.Recipient, err)
		}
		return r.upsertPool(ctx, p.PoolID)

	case domain.EventPositionTokenRedeemed:
		return r.upsertPool(ctx, ev.PositionTokenRedeemed.PoolID)
	}
	return nil
}

func (r *Recorder) upsertPool(ctx context.Context, id common.Hash) error {
	pool, err := r.src.GetPool(id)
	if err != nil {
		return fmt.Errorf("pool %s: %w", id, err)
	}
	if err := r.pools.Upsert(ctx, pool); err != nil {
		return fmt.Errorf("pool %s: %w", id, err)
	}
	return nil
}
