package ports

import (
	"context"
	"time"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(operatorID uuid.UUID, username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OperatorID uuid.UUID
	Username   string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// ResultCache caches committed operation results keyed by
// (project, reference) so a replayed commit request returns the
// original outcome instead of being applied twice.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// ValidatorService is the pre-commit invariant gate. Validate runs
// against a consistent read snapshot, takes no locks, and returns every
// violation it finds; a Valid=false result must block the mutator.
type ValidatorService interface {
	Validate(ctx context.Context, op *domain.CompoundOperation) (*domain.ValidationResult, error)
}

// SettlementService is the atomic multi-account mutator. Commit applies
// every leg of the operation or none of them.
type SettlementService interface {
	Commit(ctx context.Context, req CommitRequest) (*domain.CommitResult, error)
}

// CommitRequest carries a validated compound operation into the mutator.
type CommitRequest struct {
	Operation  *domain.CompoundOperation
	OperatorID *uuid.UUID
	ClientIP   string
}

// OverlayService is the promotional overlay resolver.
type OverlayService interface {
	// Route decides whether a delta applies to the account's main balance
	// or to an active credit's overlay. It must run inside the caller's
	// database transaction so the decision and the write cannot be split
	// by a concurrent grant or drain.
	Route(ctx context.Context, tx pgx.Tx, accountID, projectID uuid.UUID, delta decimal.Decimal) (*domain.RouteDecision, error)
	// ApplyToOverlay applies delta to the credit's overlay balance,
	// floored at zero.
	ApplyToOverlay(ctx context.Context, tx pgx.Tx, credit *domain.PromotionalCredit, delta decimal.Decimal) (decimal.Decimal, error)
	// ResyncRollover recomputes rollover progress for every active credit
	// of (account, project) from the settlement ledger and persists it.
	// Idempotent: repeated calls with no intervening settlement changes
	// produce the same progress values.
	ResyncRollover(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.PromotionalCredit, error)
	// FinalizeCredit moves a credit into a terminal state.
	FinalizeCredit(ctx context.Context, creditID uuid.UUID, outcome domain.CreditStatus) (*domain.PromotionalCredit, error)
}

// TransitService is the escrow state machine for in-flight transfers.
type TransitService interface {
	Initiate(ctx context.Context, req InitiateTransferRequest) (*TransitResult, error)
	Confirm(ctx context.Context, req ResolveTransferRequest) (*TransitResult, error)
	// Release resolves a PENDING transfer to FAILED or REVERSED,
	// returning the locked funds to the wallet's available layer.
	Release(ctx context.Context, req ResolveTransferRequest) (*TransitResult, error)
}

// InitiateTransferRequest starts a transfer out of a wallet.
type InitiateTransferRequest struct {
	WalletID             uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Coin                 string
	Quantity             decimal.Decimal
	OperatorID           *uuid.UUID
	ClientIP             string
}

// ResolveTransferRequest resolves a PENDING transfer.
type ResolveTransferRequest struct {
	TransferID uuid.UUID
	// ConfirmedAmount may differ slightly from the requested amount
	// (network fee); nil means confirmed as requested. Confirm only.
	ConfirmedAmount *decimal.Decimal
	// Reversed distinguishes "explicitly undone" from "never arrived".
	// Release only.
	Reversed   bool
	Reason     string
	OperatorID *uuid.UUID
	ClientIP   string
}

// TransitResult reports a transit operation for notification rendering.
type TransitResult struct {
	Transfer         *domain.TransitTransfer `json:"transfer"`
	BalanceTotal     decimal.Decimal         `json:"balance_total"`
	BalanceLocked    decimal.Decimal         `json:"balance_locked"`
	BalanceAvailable decimal.Decimal         `json:"balance_available"`
}

// AuthService defines operator authentication.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Operator, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for operator registration.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
}

// AuditService records request-level audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
