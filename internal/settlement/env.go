package settlement

import (
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/state"
)

// Env bundles the collaborators a settlement transition reads and writes.
// The engine constructs one per operation with its lock held; Now is the
// transaction timestamp used for every window comparison in that operation.
type Env struct {
	State  *state.State
	Ledger domain.TokenLedger
	Gov    domain.Governance
	Now    int64
}

func (e Env) periods(p *domain.Pool) domain.SettlementPeriods {
	return e.Gov.SettlementPeriods(p.IndexSettlementPeriods)
}

func (e Env) fees(p *domain.Pool) domain.Fees {
	return e.Gov.Fees(p.IndexFees)
}
