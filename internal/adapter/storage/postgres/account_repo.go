package postgres

import (
	"context"
	"errors"
	"fmt"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository. Balances are stored
// as NUMERIC and scanned through text for exact decimal arithmetic.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, project_id, bookmaker, currency, balance::TEXT, version, status, created_at, updated_at`

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, project_id, bookmaker, currency, balance, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.ProjectID, a.Bookmaker, a.Currency,
		a.Balance.String(), a.Version, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account without locking.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return a, nil
}

// GetByIDForUpdate fetches an account with a NOWAIT row lock. Returns
// domain.ErrRowLocked when another transaction holds the lock, so the
// caller can fail fast instead of queueing behind an interactive user.
// This MUST be called within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE NOWAIT`

	a, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isLockNotAvailable(err) {
			return nil, domain.ErrRowLocked
		}
		return nil, fmt.Errorf("get account for update: %w", err)
	}
	return a, nil
}

// ListByProject fetches all accounts belonging to a project.
func (r *AccountRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE project_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by project: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateBalance persists a new balance and version for the account.
// The WHERE clause re-checks the expected version: zero rows affected
// means the optimistic fence failed and nothing was written.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion, expectedVersion int64) error {
	query := `UPDATE accounts SET balance = $2::NUMERIC, version = $3, updated_at = NOW()
		WHERE id = $1 AND version = $4`

	tag, err := tx.Exec(ctx, query, id, newBalance.String(), newVersion, expectedVersion)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleVersion
	}
	return nil
}

// UpdateStatus sets the account lifecycle status. Accounts are never
// deleted while they have historical entries; closing sets status.
func (r *AccountRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error {
	query := `UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	var balance string
	err := row.Scan(
		&a.ID, &a.ProjectID, &a.Bookmaker, &a.Currency,
		&balance, &a.Version, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = scanDecimal(balance); err != nil {
		return nil, err
	}
	return a, nil
}
