package dto

import "github.com/shopspring/decimal"

// RegisterRequest is the request body for operator registration.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password    string `json:"password" binding:"required,min=8,max=128"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
}

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	OperatorID string `json:"operator_id"`
	Username   string `json:"username"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// LegRequest is one leg of a compound operation. Delta is a signed
// decimal string; expected_version is the account version the client
// last observed.
type LegRequest struct {
	AccountID       string          `json:"account_id" binding:"required,uuid"`
	Delta           decimal.Decimal `json:"delta"`
	ExpectedVersion int64           `json:"expected_version"`
	FundedByCredit  bool            `json:"funded_by_credit"`
	CreditAmount    decimal.Decimal `json:"credit_amount"`
}

// OperationRequest is the request body for both validation and commit
// of a compound operation.
type OperationRequest struct {
	Reference string       `json:"reference" binding:"omitempty,max=100,safe_id"`
	ProjectID string       `json:"project_id" binding:"required,uuid"`
	Type      string       `json:"type" binding:"required,oneof=ADJUSTMENT ARBITRAGE"`
	Strategy  string       `json:"strategy" binding:"omitempty,oneof=VALUE MIDDLE"`
	Mode      string       `json:"mode" binding:"omitempty,oneof=SINGLE PAIRED"`
	AuditTag  string       `json:"audit_tag" binding:"omitempty,max=100"`
	Legs      []LegRequest `json:"legs" binding:"required,dive"`
}

// ViolationResponse is one structured validation failure.
type ViolationResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ValidationResponse is the verdict on a proposed operation.
type ValidationResponse struct {
	Valid      bool                `json:"valid"`
	Violations []ViolationResponse `json:"violations"`
}

// LegResultResponse reports one applied leg.
type LegResultResponse struct {
	AccountID     string `json:"account_id"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	NewVersion    int64  `json:"new_version"`
	RoutedTo      string `json:"routed_to"`
	CreditID      string `json:"credit_id,omitempty"`
}

// CommitResponse reports a fully applied compound operation.
type CommitResponse struct {
	Reference string              `json:"reference"`
	Legs      []LegResultResponse `json:"legs"`
}

// InitiateTransferRequest starts a transfer out of a wallet.
type InitiateTransferRequest struct {
	WalletID             string          `json:"wallet_id" binding:"required,uuid"`
	DestinationAccountID string          `json:"destination_account_id" binding:"required,uuid"`
	Amount               decimal.Decimal `json:"amount" binding:"required"`
	Coin                 string          `json:"coin" binding:"required,max=10"`
	Quantity             decimal.Decimal `json:"quantity"`
}

// ConfirmTransferRequest resolves a PENDING transfer as arrived.
// ConfirmedAmount may fall short of the requested amount (network fee).
type ConfirmTransferRequest struct {
	ConfirmedAmount *decimal.Decimal `json:"confirmed_amount,omitempty"`
	Reason          string           `json:"reason" binding:"omitempty,max=255"`
}

// FailTransferRequest resolves a PENDING transfer without arrival.
type FailTransferRequest struct {
	Intent string `json:"intent" binding:"required,oneof=failed reversed"`
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// TransferResponse reports a transit operation and the wallet layers
// after it.
type TransferResponse struct {
	ID                   string  `json:"id"`
	WalletID             string  `json:"wallet_id"`
	DestinationAccountID string  `json:"destination_account_id"`
	Amount               string  `json:"amount"`
	ConfirmedAmount      *string `json:"confirmed_amount,omitempty"`
	Coin                 string  `json:"coin"`
	Status               string  `json:"status"`
	Reason               *string `json:"reason,omitempty"`
	BalanceTotal         string  `json:"balance_total"`
	BalanceLocked        string  `json:"balance_locked"`
	BalanceAvailable     string  `json:"balance_available"`
}

// ResyncRequest asks for a rollover recomputation on one account.
type ResyncRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	ProjectID string `json:"project_id" binding:"required,uuid"`
}

// CreditResponse is the view of a promotional credit.
type CreditResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	Amount           string `json:"amount"`
	Status           string `json:"status"`
	RolloverTarget   string `json:"rollover_target"`
	RolloverProgress string `json:"rollover_progress"`
	OverlayBalance   string `json:"overlay_balance"`
}

// FinalizeCreditRequest moves a credit to a terminal status.
type FinalizeCreditRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=FINALIZED EXPIRED FAILED REVERSED"`
}

// AccountResponse is the balance/version view of an account.
type AccountResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Bookmaker string `json:"bookmaker"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	Version   int64  `json:"version"`
	Status    string `json:"status"`
}

// WalletResponse is the three-layer view of a wallet.
type WalletResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Coin             string `json:"coin"`
	BalanceTotal     string `json:"balance_total"`
	BalanceLocked    string `json:"balance_locked"`
	BalanceAvailable string `json:"balance_available"`
}
