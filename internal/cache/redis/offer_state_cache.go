package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// OfferStateCache implements domain.OfferStateCache using JSON-serialized
// relevant states under short-TTL string keys. Deriving a relevant state
// involves an ECDSA public key recovery, which is worth skipping for
// read-heavy taker UIs polling the same offers.
//
// Key schema:
//
//	offerstate:{typedOfferHash} - JSON-encoded OfferRelevantState
type OfferStateCache struct {
	rdb *redis.Client
}

// NewOfferStateCache creates an OfferStateCache backed by the given Client.
func NewOfferStateCache(c *Client) *OfferStateCache {
	return &OfferStateCache{rdb: c.Underlying()}
}

func offerStateKey(hash common.Hash) string {
	return "offerstate:" + hash.Hex()
}

// Set stores a derived relevant state with the given TTL.
func (oc *OfferStateCache) Set(ctx context.Context, typedOfferHash common.Hash, state domain.OfferRelevantState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal offer state %s: %w", typedOfferHash, err)
	}
	if err := oc.rdb.Set(ctx, offerStateKey(typedOfferHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set offer state %s: %w", typedOfferHash, err)
	}
	return nil
}

// Get retrieves a cached relevant state. It returns domain.ErrNotFound when
// the key does not exist or has expired.
func (oc *OfferStateCache) Get(ctx context.Context, typedOfferHash common.Hash) (domain.OfferRelevantState, error) {
	data, err := oc.rdb.Get(ctx, offerStateKey(typedOfferHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OfferRelevantState{}, domain.ErrNotFound
		}
		return domain.OfferRelevantState{}, fmt.Errorf("redis: get offer state %s: %w", typedOfferHash, err)
	}

	var state domain.OfferRelevantState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.OfferRelevantState{}, fmt.Errorf("redis: unmarshal offer state %s: %w", typedOfferHash, err)
	}
	return state, nil
}

// Invalidate removes a cached relevant state, called after any fill or
// cancel touching the offer.
func (oc *OfferStateCache) Invalidate(ctx context.Context, typedOfferHash common.Hash) error {
	if err := oc.rdb.Del(ctx, offerStateKey(typedOfferHash)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate offer state %s: %w", typedOfferHash, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OfferStateCache = (*OfferStateCache)(nil)
