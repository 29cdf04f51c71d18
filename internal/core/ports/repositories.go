package ports

import (
	"context"
	"time"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepository is the account balance store: the authoritative
// record of each account's funds and its monotonic version token.
// Methods accepting pgx.Tx run inside transaction blocks; the ForUpdate
// variants take the row lock in NOWAIT mode and return
// domain.ErrRowLocked when another writer holds it.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Account, error)
	// UpdateBalance persists the new balance and version. The WHERE clause
	// re-checks expectedVersion; zero rows affected means the optimistic
	// fence failed even under the lock.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion, expectedVersion int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error
}

// CreditRepository persists promotional credits.
type CreditRepository interface {
	Create(ctx context.Context, credit *domain.PromotionalCredit) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionalCredit, error)
	// GetActive returns the most recently granted credit for
	// (account, project) with status CREDITED and a positive overlay
	// balance, or nil when none is active.
	GetActive(ctx context.Context, tx pgx.Tx, accountID, projectID uuid.UUID) (*domain.PromotionalCredit, error)
	ListActiveByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.PromotionalCredit, error)
	UpdateOverlayBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newOverlay decimal.Decimal) error
	UpdateRolloverProgress(ctx context.Context, id uuid.UUID, progress decimal.Decimal) error
	Finalize(ctx context.Context, id uuid.UUID, status domain.CreditStatus, at time.Time) error
}

// WalletRepository persists wallets and their three-layer balances.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// UpdateBalances persists both balance layers in one statement so the
	// available = total - locked identity never observes a torn write.
	UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, total, locked decimal.Decimal) error
}

// TransferRepository persists transit transfers. Rows are append-only
// except for their terminal status fields.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transfer *domain.TransitTransfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransitTransfer, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TransitTransfer, error)
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, confirmedAmount *decimal.Decimal, reason *string, at time.Time) error
	ListPendingByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.TransitTransfer, error)
}

// SettlementRepository is the immutable ledger of applied legs.
type SettlementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.SettlementEntry) error
	ListByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.SettlementEntry, error)
	// SumTurnover returns the total qualifying turnover (stakes wagered
	// against the given credit) recorded since the credit was granted.
	SumTurnover(ctx context.Context, creditID uuid.UUID, since time.Time) (decimal.Decimal, error)
}

// OperatorRepository persists operator logins.
type OperatorRepository interface {
	Create(ctx context.Context, operator *domain.Operator) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error)
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
}

// AuditRepository persists audit records. CreateInTx is used by the
// mutator so the audit row commits atomically with the mutation it
// describes; Create is the standalone path for request-level auditing.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	CreateInTx(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
