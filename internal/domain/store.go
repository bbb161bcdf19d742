package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PoolStore persists pool snapshots. The in-memory state context is
// authoritative at runtime; the store is write-through and used to rehydrate
// state on boot.
type PoolStore interface {
	Upsert(ctx context.Context, pool Pool) error
	GetByID(ctx context.Context, id common.Hash) (Pool, error)
	ListAll(ctx context.Context) ([]Pool, error)
	ListUnconfirmedExpired(ctx context.Context, now int64) ([]Pool, error)
}

// FillStore persists per-offer fill records keyed by typed offer hash.
type FillStore interface {
	Upsert(ctx context.Context, typedOfferHash common.Hash, rec FillRecord) error
	Get(ctx context.Context, typedOfferHash common.Hash) (FillRecord, error)
	ListAll(ctx context.Context) (map[common.Hash]FillRecord, error)
}

// ClaimStore persists the fee claim ledger.
type ClaimStore interface {
	Upsert(ctx context.Context, claim FeeClaim) error
	Get(ctx context.Context, token common.Address, recipient common.Address) (FeeClaim, error)
	ListAll(ctx context.Context) ([]FeeClaim, error)
}

// EventStore persists the append-only protocol event journal.
type EventStore interface {
	Insert(ctx context.Context, ev Event) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Event, error)
}
