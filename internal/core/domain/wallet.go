package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds crypto/fiat reserves used to fund bookmaker accounts.
// Invariant: available = total - locked at all times; operations spend
// only from the available layer.
type Wallet struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Coin          string          `json:"coin"`
	BalanceTotal  decimal.Decimal `json:"balance_total"`
	BalanceLocked decimal.Decimal `json:"balance_locked"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available returns the spendable layer of the wallet balance.
func (w *Wallet) Available() decimal.Decimal {
	return w.BalanceTotal.Sub(w.BalanceLocked)
}

// TransferStatus represents the escrow state of an in-flight transfer.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusConfirmed TransferStatus = "CONFIRMED"
	TransferStatusFailed    TransferStatus = "FAILED"
	TransferStatusReversed  TransferStatus = "REVERSED"
)

// TransitTransfer represents money in flight from a wallet to a
// destination account. Funds are locked at initiation and either leave
// the wallet permanently (CONFIRMED) or return to the available layer
// (FAILED, REVERSED). Terminal states resolve exactly once.
type TransitTransfer struct {
	ID                   uuid.UUID        `json:"id"`
	WalletID             uuid.UUID        `json:"wallet_id"`
	DestinationAccountID uuid.UUID        `json:"destination_account_id"`
	Amount               decimal.Decimal  `json:"amount"`
	ConfirmedAmount      *decimal.Decimal `json:"confirmed_amount,omitempty"`
	Coin                 string           `json:"coin"`
	Quantity             decimal.Decimal  `json:"quantity"`
	Status               TransferStatus   `json:"status"`
	Reason               *string          `json:"reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	ResolvedAt           *time.Time       `json:"resolved_at,omitempty"`
}

// IsTerminal returns true once the transfer has been resolved.
func (t *TransitTransfer) IsTerminal() bool {
	return t.Status != TransferStatusPending
}

// Slippage returns confirmed minus requested amount, zero while pending.
// A nonzero value is absorbed as a loss/gain and shows up in auditing.
func (t *TransitTransfer) Slippage() decimal.Decimal {
	if t.ConfirmedAmount == nil {
		return decimal.Zero
	}
	return t.ConfirmedAmount.Sub(t.Amount)
}
