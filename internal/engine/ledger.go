package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/divaprotocol/diva-engine/internal/domain"
)

// Ledger passthroughs, locked like every other public operation. Deployments
// backed by a real chain ledger feed balances externally; the in-process
// ledger is seeded through these.

// MintCollateral credits collateral to an account.
func (e *Engine) MintCollateral(token common.Address, to common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Mint(token, to, amount)
}

// ApproveEscrow grants the protocol escrow account spending rights over
// owner's collateral, the standing approval a maker needs before their
// offers become fillable.
func (e *Engine) ApproveEscrow(token common.Address, owner common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Approve(token, owner, domain.EscrowAccount, amount)
}

// CollateralBalance returns an account's collateral balance.
func (e *Engine) CollateralBalance(token common.Address, account common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(token, account)
}

// PositionBalance returns an account's balance of a position token.
func (e *Engine) PositionBalance(token common.Hash, account common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PositionBalance(token, account)
}
