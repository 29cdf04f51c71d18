package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementEntry is an immutable ledger row recording one applied leg
// of a compound operation. The ledger is the source of truth rollover
// progress is recomputed from: editing or voiding a bet rewrites its
// entries and a resync re-derives the progress, so nothing is ever
// double counted.
type SettlementEntry struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	ProjectID     uuid.UUID       `json:"project_id"`
	CreditID      *uuid.UUID      `json:"credit_id,omitempty"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	OriginTag     string          `json:"origin_tag"`
	CreatedAt     time.Time       `json:"created_at"`
}

// QualifiesForRollover reports whether this entry counts toward a
// credit's turnover requirement: only stakes (debits) wagered against
// an active credit qualify, winnings do not.
func (e *SettlementEntry) QualifiesForRollover() bool {
	return e.CreditID != nil && e.Amount.Sign() < 0
}

// Turnover returns the wagered amount this entry contributes.
func (e *SettlementEntry) Turnover() decimal.Decimal {
	if !e.QualifiesForRollover() {
		return decimal.Zero
	}
	return e.Amount.Neg()
}
