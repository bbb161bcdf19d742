// Package state holds the shared protocol state context. Every engine and
// settlement function operates on one *State passed in explicitly; there are
// no package-level singletons. The engine serializes public operations, so
// State itself carries no locking.
package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/fp"
)

// ClaimKey identifies one fee claim balance.
type ClaimKey struct {
	Token     common.Address
	Recipient common.Address
}

// State is the full mutable protocol state: pools, per-offer fill records,
// the fee claim ledger, and the token ledger backing store (collateral
// balances/allowances plus position-token supplies and balances).
type State struct {
	Pools  map[common.Hash]*domain.Pool
	Fills  map[common.Hash]domain.FillRecord
	Claims map[ClaimKey]*big.Int

	// Position token registry: token id -> descriptor.
	PositionTokens map[common.Hash]domain.PositionToken

	balances   map[common.Address]map[common.Address]*big.Int                    // token -> account -> amount
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender
	posSupply  map[common.Hash]*big.Int
	posBalance map[common.Hash]map[common.Address]*big.Int
}

// New returns an empty state context.
func New() *State {
	return &State{
		Pools:          make(map[common.Hash]*domain.Pool),
		Fills:          make(map[common.Hash]domain.FillRecord),
		Claims:         make(map[ClaimKey]*big.Int),
		PositionTokens: make(map[common.Hash]domain.PositionToken),
		balances:       make(map[common.Address]map[common.Address]*big.Int),
		allowances:     make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		posSupply:      make(map[common.Hash]*big.Int),
		posBalance:     make(map[common.Hash]map[common.Address]*big.Int),
	}
}

// Pool returns the pool with the given id, or nil.
func (s *State) Pool(id common.Hash) *domain.Pool {
	return s.Pools[id]
}

// PutPool installs or replaces a pool and registers its position tokens.
func (s *State) PutPool(p *domain.Pool) {
	s.Pools[p.ID] = p
	s.PositionTokens[p.LongToken] = domain.PositionToken{ID: p.LongToken, PoolID: p.ID, IsLong: true}
	s.PositionTokens[p.ShortToken] = domain.PositionToken{ID: p.ShortToken, PoolID: p.ID, IsLong: false}
}

// FillRecord returns the record for a typed offer hash, defaulting to an
// empty in-progress record.
func (s *State) FillRecord(typedOfferHash common.Hash) domain.FillRecord {
	rec, ok := s.Fills[typedOfferHash]
	if !ok {
		return domain.NewFillRecord()
	}
	return rec
}

// SetFillRecord stores a record.
func (s *State) SetFillRecord(typedOfferHash common.Hash, rec domain.FillRecord) {
	s.Fills[typedOfferHash] = rec
}

// AddClaim credits amount to the (token, recipient) claim balance.
func (s *State) AddClaim(token common.Address, recipient common.Address, amount *big.Int) {
	if fp.IsZero(amount) {
		return
	}
	key := ClaimKey{Token: token, Recipient: recipient}
	cur, ok := s.Claims[key]
	if !ok {
		cur = new(big.Int)
		s.Claims[key] = cur
	}
	cur.Add(cur, amount)
}

// Claim returns the claimable balance for (token, recipient).
func (s *State) Claim(token common.Address, recipient common.Address) *big.Int {
	cur, ok := s.Claims[ClaimKey{Token: token, Recipient: recipient}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// Clone deep-copies the entire state. Batch operations apply against the
// live state after taking a clone and restore it wholesale on failure, which
// gives whole-batch atomicity without per-field undo logs.
func (s *State) Clone() *State {
	c := New()
	for id, p := range s.Pools {
		cp := p.Clone()
		c.Pools[id] = &cp
	}
	for h, rec := range s.Fills {
		c.Fills[h] = domain.FillRecord{Cancelled: rec.Cancelled, Filled: fp.Clone(rec.Filled)}
	}
	for k, v := range s.Claims {
		c.Claims[k] = fp.Clone(v)
	}
	for id, tok := range s.PositionTokens {
		c.PositionTokens[id] = tok
	}
	for tok, accts := range s.balances {
		m := make(map[common.Address]*big.Int, len(accts))
		for a, v := range accts {
			m[a] = fp.Clone(v)
		}
		c.balances[tok] = m
	}
	for tok, owners := range s.allowances {
		om := make(map[common.Address]map[common.Address]*big.Int, len(owners))
		for o, spenders := range owners {
			sm := make(map[common.Address]*big.Int, len(spenders))
			for sp, v := range spenders {
				sm[sp] = fp.Clone(v)
			}
			om[o] = sm
		}
		c.allowances[tok] = om
	}
	for tok, v := range s.posSupply {
		c.posSupply[tok] = fp.Clone(v)
	}
	for tok, accts := range s.posBalance {
		m := make(map[common.Address]*big.Int, len(accts))
		for a, v := range accts {
			m[a] = fp.Clone(v)
		}
		c.posBalance[tok] = m
	}
	return c
}

// Restore overwrites s with the contents of snapshot.
func (s *State) Restore(snapshot *State) {
	s.Pools = snapshot.Pools
	s.Fills = snapshot.Fills
	s.Claims = snapshot.Claims
	s.PositionTokens = snapshot.PositionTokens
	s.balances = snapshot.balances
	s.allowances = snapshot.allowances
	s.posSupply = snapshot.posSupply
	s.posBalance = snapshot.posBalance
}
