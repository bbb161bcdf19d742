package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowAccount is the internal ledger account holding all pool collateral.
// Fills deposit into it; redemptions and fee claims pay out of it. It plays
// the role the verifying contract's own balance plays on chain.
var EscrowAccount = common.BytesToAddress([]byte("diva-engine/escrow"))

// TokenLedger is the external balance/allowance collaborator. The engine
// never assumes an in-process balance; every movement of collateral or
// position tokens goes through this interface.
//
// Collateral tokens are identified by address, position tokens by their
// derived hash id. Burning a position token needs no allowance: holders burn
// their own balance, the engine burns on their behalf during remove fills
// and redemptions.
type TokenLedger interface {
	// Collateral
	BalanceOf(token common.Address, account common.Address) *big.Int
	Allowance(token common.Address, owner, spender common.Address) *big.Int
	Approve(token common.Address, owner, spender common.Address, amount *big.Int)
	Transfer(token common.Address, from, to common.Address, amount *big.Int) error
	TransferFrom(token common.Address, spender, from, to common.Address, amount *big.Int) error
	Mint(token common.Address, to common.Address, amount *big.Int)

	// Position tokens
	PositionBalance(token common.Hash, account common.Address) *big.Int
	PositionSupply(token common.Hash) *big.Int
	MintPosition(token common.Hash, to common.Address, amount *big.Int)
	BurnPosition(token common.Hash, from common.Address, amount *big.Int) error
}
