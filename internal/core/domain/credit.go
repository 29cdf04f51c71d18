package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditStatus represents the lifecycle state of a promotional credit.
// Every state except CREDITED is terminal.
type CreditStatus string

const (
	CreditStatusCredited  CreditStatus = "CREDITED"
	CreditStatusFinalized CreditStatus = "FINALIZED"
	CreditStatusExpired   CreditStatus = "EXPIRED"
	CreditStatusFailed    CreditStatus = "FAILED"
	CreditStatusReversed  CreditStatus = "REVERSED"
)

// PromotionalCredit is a time-boxed bonus tied to one account. While
// active its OverlayBalance shadows the account's main balance: deltas
// routed to the overlay consume the bonus instead of real funds.
// RolloverProgress is a cache of a pure function over settled ledger
// entries; it is recomputed by resync, never accumulated incrementally.
type PromotionalCredit struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        uuid.UUID       `json:"account_id"`
	ProjectID        uuid.UUID       `json:"project_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           CreditStatus    `json:"status"`
	RolloverTarget   decimal.Decimal `json:"rollover_target"`
	RolloverProgress decimal.Decimal `json:"rollover_progress"`
	OverlayBalance   decimal.Decimal `json:"overlay_balance"`
	GrantedAt        time.Time       `json:"granted_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	FinalizedAt      *time.Time      `json:"finalized_at,omitempty"`
}

// IsActive returns true while the credit overlays the account balance.
func (c *PromotionalCredit) IsActive() bool {
	return c.Status == CreditStatusCredited && c.OverlayBalance.Sign() > 0
}

// IsTerminal returns true once the credit has been finalized.
func (c *PromotionalCredit) IsTerminal() bool {
	return c.Status != CreditStatusCredited
}

// RolloverSatisfied returns true once enough qualifying turnover has
// been wagered against the credit.
func (c *PromotionalCredit) RolloverSatisfied() bool {
	return c.RolloverProgress.GreaterThanOrEqual(c.RolloverTarget)
}
