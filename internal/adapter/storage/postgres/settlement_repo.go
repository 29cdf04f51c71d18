package postgres

import (
	"context"
	"fmt"
	"time"

	"arb-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettlementRepo implements ports.SettlementRepository: the immutable
// ledger of applied legs. Rollover progress is recomputed from these
// rows, never accumulated, so replays and bet edits cannot double count.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

const settlementColumns = `id, account_id, project_id, credit_id, reference, amount::TEXT,
		balance_before::TEXT, balance_after::TEXT, origin_tag, created_at`

// Create appends a ledger entry within a database transaction.
func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.SettlementEntry) error {
	query := `INSERT INTO settlement_entries (id, account_id, project_id, credit_id, reference, amount,
		balance_before, balance_after, origin_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.AccountID, e.ProjectID, e.CreditID, e.Reference,
		e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.OriginTag, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement entry: %w", err)
	}
	return nil
}

// ListByAccount returns all ledger entries for (account, project) in
// chronological order.
func (r *SettlementRepo) ListByAccount(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.SettlementEntry, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_entries
		WHERE account_id = $1 AND project_id = $2 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, accountID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list settlement entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.SettlementEntry
	for rows.Next() {
		e, err := scanSettlementEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// SumTurnover computes the qualifying turnover recorded against a
// credit since it was granted: the sum of stake amounts (debits) of its
// ledger entries. COALESCE keeps the zero-entry case at 0.
func (r *SettlementRepo) SumTurnover(ctx context.Context, creditID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(-amount), 0)::TEXT FROM settlement_entries
		WHERE credit_id = $1 AND amount < 0 AND created_at >= $2`

	var sum string
	err := r.pool.QueryRow(ctx, query, creditID, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum turnover: %w", err)
	}
	return scanDecimal(sum)
}

func scanSettlementEntry(row pgx.Row) (*domain.SettlementEntry, error) {
	e := &domain.SettlementEntry{}
	var amount, before, after string
	err := row.Scan(
		&e.ID, &e.AccountID, &e.ProjectID, &e.CreditID, &e.Reference,
		&amount, &before, &after, &e.OriginTag, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}
	if e.BalanceBefore, err = scanDecimal(before); err != nil {
		return nil, err
	}
	if e.BalanceAfter, err = scanDecimal(after); err != nil {
		return nil, err
	}
	return e, nil
}
