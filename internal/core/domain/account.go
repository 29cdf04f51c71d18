package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus represents the lifecycle state of a bookmaker account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusBlocked   AccountStatus = "BLOCKED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// ErrRowLocked is returned by repositories when a row lock cannot be
// acquired immediately (FOR UPDATE NOWAIT lost the race). The caller
// surfaces it as an "operation in progress" conflict instead of waiting.
var ErrRowLocked = errors.New("row locked by concurrent operation")

// ErrStaleVersion is returned when a versioned update matches no row:
// the optimistic fence failed.
var ErrStaleVersion = errors.New("account version is stale")

// Account is one funding source: a bookmaker login tied to a project.
// Balance commingles deposits, winnings and settled promotions; it must
// never be negative as observed by any committed read. Version increments
// on every successful mutation of the account row and is the optimistic
// fence checked by the mutator.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	Bookmaker string          `json:"bookmaker"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsOperable returns true if the account may participate in settlements.
func (a *Account) IsOperable() bool {
	return a.Status == AccountStatusActive
}

// CanAbsorb returns true if applying delta keeps the balance non-negative.
func (a *Account) CanAbsorb(delta decimal.Decimal) bool {
	return a.Balance.Add(delta).Sign() >= 0
}
