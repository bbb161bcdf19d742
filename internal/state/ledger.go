package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// Ledger implements domain.TokenLedger on top of a State. Keeping balances
// inside the state context means a batch snapshot/restore covers token
// movements too.
type Ledger struct {
	st *State
}

// NewLedger returns the ledger view over st.
func NewLedger(st *State) *Ledger {
	return &Ledger{st: st}
}

var _ domain.TokenLedger = (*Ledger)(nil)

// BalanceOf returns the collateral balance of account.
func (l *Ledger) BalanceOf(token common.Address, account common.Address) *big.Int {
	if accts, ok := l.st.balances[token]; ok {
		if v, ok := accts[account]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// Allowance returns how much spender may move from owner.
func (l *Ledger) Allowance(token common.Address, owner, spender common.Address) *big.Int {
	if owners, ok := l.st.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if v, ok := spenders[spender]; ok {
				return new(big.Int).Set(v)
			}
		}
	}
	return new(big.Int)
}

// Approve sets spender's allowance over owner's tokens.
func (l *Ledger) Approve(token common.Address, owner, spender common.Address, amount *big.Int) {
	owners, ok := l.st.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		l.st.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
}

// Transfer moves collateral without an allowance check (the engine pays out
// from accounts it legitimately debits, e.g. pool collateral returns).
func (l *Ledger) Transfer(token common.Address, from, to common.Address, amount *big.Int) error {
	return l.move(token, from, to, amount)
}

// TransferFrom moves collateral on behalf of spender, consuming allowance.
func (l *Ledger) TransferFrom(token common.Address, spender, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if from != spender {
		allowed := l.Allowance(token, from, spender)
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("ledger: %s from %s: %w", token, from, domain.ErrInsufficientAllowance)
		}
		l.Approve(token, from, spender, new(big.Int).Sub(allowed, amount))
	}
	return l.move(token, from, to, amount)
}

// Mint credits freshly issued collateral to an account (test/faucet path;
// production deployments feed balances from the external chain ledger).
func (l *Ledger) Mint(token common.Address, to common.Address, amount *big.Int) {
	accts, ok := l.st.balances[token]
	if !ok {
		accts = make(map[common.Address]*big.Int)
		l.st.balances[token] = accts
	}
	cur, ok := accts[to]
	if !ok {
		cur = new(big.Int)
		accts[to] = cur
	}
	cur.Add(cur, amount)
}

func (l *Ledger) move(token common.Address, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal := l.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: %s from %s: %w", token, from, domain.ErrInsufficientBalance)
	}
	l.st.balances[token][from] = bal.Sub(bal, amount)
	l.Mint(token, to, amount)
	return nil
}

// --------------------------------------------------------------------------
// Position tokens
// --------------------------------------------------------------------------

// PositionBalance returns account's balance of a position token.
func (l *Ledger) PositionBalance(token common.Hash, account common.Address) *big.Int {
	if accts, ok := l.st.posBalance[token]; ok {
		if v, ok := accts[account]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// PositionSupply returns a position token's total supply.
func (l *Ledger) PositionSupply(token common.Hash) *big.Int {
	if v, ok := l.st.posSupply[token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// MintPosition issues position tokens to an account.
func (l *Ledger) MintPosition(token common.Hash, to common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	accts, ok := l.st.posBalance[token]
	if !ok {
		accts = make(map[common.Address]*big.Int)
		l.st.posBalance[token] = accts
	}
	cur, ok := accts[to]
	if !ok {
		cur = new(big.Int)
		accts[to] = cur
	}
	cur.Add(cur, amount)

	sup, ok := l.st.posSupply[token]
	if !ok {
		sup = new(big.Int)
		l.st.posSupply[token] = sup
	}
	sup.Add(sup, amount)
}

// BurnPosition destroys position tokens held by from. Burns need no
// allowance; only the engine calls this, on behalf of the holder.
func (l *Ledger) BurnPosition(token common.Hash, from common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal := l.PositionBalance(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: position %s from %s: %w", token, from, domain.ErrInsufficientBalance)
	}
	l.st.posBalance[token][from] = bal.Sub(bal, amount)
	sup := l.st.posSupply[token]
	sup.Sub(sup, amount)
	return nil
}
