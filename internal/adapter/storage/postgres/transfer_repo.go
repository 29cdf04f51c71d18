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

// TransferRepo implements ports.TransferRepository. Transfer rows are
// append-only except for their terminal resolution fields.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

const transferColumns = `id, wallet_id, destination_account_id, amount::TEXT, confirmed_amount::TEXT,
		coin, quantity::TEXT, status, reason, created_at, resolved_at`

// Create inserts a new PENDING transfer within a database transaction.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.TransitTransfer) error {
	query := `INSERT INTO transit_transfers (id, wallet_id, destination_account_id, amount, confirmed_amount,
		coin, quantity, status, reason, created_at, resolved_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7::NUMERIC, $8, $9, $10, $11)`

	var confirmed *string
	if t.ConfirmedAmount != nil {
		s := t.ConfirmedAmount.String()
		confirmed = &s
	}

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.DestinationAccountID, t.Amount.String(), confirmed,
		t.Coin, t.Quantity.String(), t.Status, t.Reason, t.CreatedAt, t.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID fetches a transfer without locking.
func (r *TransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransitTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transit_transfers WHERE id = $1`

	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer by id: %w", err)
	}
	return t, nil
}

// GetByIDForUpdate fetches a transfer with a NOWAIT row lock so two
// resolutions of the same transfer serialize and the loser fails fast.
// This MUST be called within a transaction.
func (r *TransferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TransitTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transit_transfers WHERE id = $1 FOR UPDATE NOWAIT`

	t, err := scanTransfer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isLockNotAvailable(err) {
			return nil, domain.ErrRowLocked
		}
		return nil, fmt.Errorf("get transfer for update: %w", err)
	}
	return t, nil
}

// Resolve moves a PENDING transfer into a terminal status. The WHERE
// clause only matches PENDING rows, so re-resolving a terminal transfer
// affects zero rows and is rejected rather than silently ignored.
func (r *TransferRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus, confirmedAmount *decimal.Decimal, reason *string, at time.Time) error {
	query := `UPDATE transit_transfers SET status = $2, confirmed_amount = $3, reason = $4, resolved_at = $5
		WHERE id = $1 AND status = $6`

	var confirmed *string
	if confirmedAmount != nil {
		s := confirmedAmount.String()
		confirmed = &s
	}

	tag, err := tx.Exec(ctx, query, id, status, confirmed, reason, at, domain.TransferStatusPending)
	if err != nil {
		return fmt.Errorf("resolve transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transfer %s is not pending", id)
	}
	return nil
}

// ListPendingByWallet returns the PENDING transfers whose amounts sum to
// the wallet's locked balance.
func (r *TransferRepo) ListPendingByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.TransitTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transit_transfers
		WHERE wallet_id = $1 AND status = $2 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, walletID, domain.TransferStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.TransitTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func scanTransfer(row pgx.Row) (*domain.TransitTransfer, error) {
	t := &domain.TransitTransfer{}
	var amount, quantity string
	var confirmed *string
	err := row.Scan(
		&t.ID, &t.WalletID, &t.DestinationAccountID, &amount, &confirmed,
		&t.Coin, &quantity, &t.Status, &t.Reason, &t.CreatedAt, &t.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = scanDecimal(amount); err != nil {
		return nil, err
	}
	if t.Quantity, err = scanDecimal(quantity); err != nil {
		return nil, err
	}
	if confirmed != nil {
		d, err := scanDecimal(*confirmed)
		if err != nil {
			return nil, err
		}
		t.ConfirmedAmount = &d
	}
	return t, nil
}
