package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CreditRepo implements ports.CreditRepository.
type CreditRepo struct {
	pool Pool
}

// NewCreditRepo creates a new CreditRepo.
func NewCreditRepo(pool Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

const creditColumns = `id, account_id, project_id, amount::TEXT, status, rollover_target::TEXT,
		rollover_progress::TEXT, overlay_balance::TEXT, granted_at, expires_at, finalized_at`

// Create inserts a new promotional credit.
func (r *CreditRepo) Create(ctx context.Context, c *domain.PromotionalCredit) error {
	query := `INSERT INTO promotional_credits (id, account_id, project_id, amount, status, rollover_target,
		rollover_progress, overlay_balance, granted_at, expires_at, finalized_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.AccountID, c.ProjectID, c.Amount.String(), c.Status,
		c.RolloverTarget.String(), c.RolloverProgress.String(), c.OverlayBalance.String(),
		c.GrantedAt, c.ExpiresAt, c.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	return nil
}

// GetByID fetches a credit by its UUID.
func (r *CreditRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionalCredit, error) {
	query := `SELECT ` + creditColumns + ` FROM promotional_credits WHERE id = $1`

	c, err := scanCredit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit by id: %w", err)
	}
	return c, nil
}

// GetActive returns the most recently granted active credit for
// (account, project): status CREDITED with a positive overlay balance.
// Runs inside the caller's transaction so the routing decision and the
// subsequent overlay write are covered by the same snapshot.
func (r *CreditRepo) GetActive(ctx context.Context, tx pgx.Tx, accountID, projectID uuid.UUID) (*domain.PromotionalCredit, error) {
	query := `SELECT ` + creditColumns + ` FROM promotional_credits
		WHERE account_id = $1 AND project_id = $2 AND status = $3 AND overlay_balance > 0
		ORDER BY granted_at DESC LIMIT 1`

	c, err := scanCredit(tx.QueryRow(ctx, query, accountID, projectID, domain.CreditStatusCredited))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active credit: %w", err)
	}
	return c, nil
}

// ListActiveByAccount returns every active credit for (account, project),
// most recent first.
func (r *CreditRepo) ListActiveByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.PromotionalCredit, error) {
	query := `SELECT ` + creditColumns + ` FROM promotional_credits
		WHERE account_id = $1 AND project_id = $2 AND status = $3 AND overlay_balance > 0
		ORDER BY granted_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID, projectID, domain.CreditStatusCredited)
	if err != nil {
		return nil, fmt.Errorf("list active credits: %w", err)
	}
	defer rows.Close()

	var credits []domain.PromotionalCredit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		credits = append(credits, *c)
	}
	return credits, rows.Err()
}

// UpdateOverlayBalance persists a credit's overlay balance within a
// transaction.
func (r *CreditRepo) UpdateOverlayBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newOverlay decimal.Decimal) error {
	query := `UPDATE promotional_credits SET overlay_balance = $2::NUMERIC WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, newOverlay.String())
	if err != nil {
		return fmt.Errorf("update overlay balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit not found: %s", id)
	}
	return nil
}

// UpdateRolloverProgress overwrites the stored progress with a value
// recomputed from the settlement ledger.
func (r *CreditRepo) UpdateRolloverProgress(ctx context.Context, id uuid.UUID, progress decimal.Decimal) error {
	query := `UPDATE promotional_credits SET rollover_progress = $2::NUMERIC WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, progress.String())
	if err != nil {
		return fmt.Errorf("update rollover progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit not found: %s", id)
	}
	return nil
}

// Finalize moves a credit into a terminal status. The WHERE clause only
// matches credits still in CREDITED, so double finalization affects
// zero rows and is rejected.
func (r *CreditRepo) Finalize(ctx context.Context, id uuid.UUID, status domain.CreditStatus, at time.Time) error {
	query := `UPDATE promotional_credits SET status = $2, finalized_at = $3
		WHERE id = $1 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, id, status, at, domain.CreditStatusCredited)
	if err != nil {
		return fmt.Errorf("finalize credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit %s is not finalizable", id)
	}
	return nil
}

func scanCredit(row pgx.Row) (*domain.PromotionalCredit, error) {
	c := &domain.PromotionalCredit{}
	var amount, target, progress, overlay string
	err := row.Scan(
		&c.ID, &c.AccountID, &c.ProjectID, &amount, &c.Status,
		&target, &progress, &overlay, &c.GrantedAt, &c.ExpiresAt, &c.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}
	if c.RolloverTarget, err = scanDecimal(target); err != nil {
		return nil, err
	}
	if c.RolloverProgress, err = scanDecimal(progress); err != nil {
		return nil, err
	}
	if c.OverlayBalance, err = scanDecimal(overlay); err != nil {
		return nil, err
	}
	return c, nil
}
