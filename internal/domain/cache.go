package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OfferStateCache stores recently derived offer relevant states so read-heavy
// taker UIs don't recompute signature recovery on every poll. Entries are
// short-lived; a fill or cancel invalidates.
type OfferStateCache interface {
	Set(ctx context.Context, typedOfferHash common.Hash, state OfferRelevantState, ttl time.Duration) error
	Get(ctx context.Context, typedOfferHash common.Hash) (OfferRelevantState, error)
	Invalidate(ctx context.Context, typedOfferHash common.Hash) error
}

// RateLimiter provides distributed rate limiting for the public API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking, used to elect a single
// settlement sweeper across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus publishes protocol events for external consumers: ephemeral
// pub/sub fan-out plus a durable, ordered stream.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
