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

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, name, coin, balance_total::TEXT, balance_locked::TEXT, created_at, updated_at`

// Create inserts a new wallet.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, name, coin, balance_total, balance_locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.Name, w.Coin,
		w.BalanceTotal.String(), w.BalanceLocked.String(),
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet without locking.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a wallet with a NOWAIT row lock. The
// check-and-lock of transfer initiation runs under this lock so two
// initiations can never both observe sufficient availability.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE NOWAIT`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isLockNotAvailable(err) {
			return nil, domain.ErrRowLocked
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalances persists both balance layers in a single statement so
// a reader never observes total and locked from different writes.
func (r *WalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, total, locked decimal.Decimal) error {
	query := `UPDATE wallets SET balance_total = $2::NUMERIC, balance_locked = $3::NUMERIC, updated_at = NOW()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id, total.String(), locked.String())
	if err != nil {
		return fmt.Errorf("update wallet balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", id)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var total, locked string
	err := row.Scan(&w.ID, &w.Name, &w.Coin, &total, &locked, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if w.BalanceTotal, err = scanDecimal(total); err != nil {
		return nil, err
	}
	if w.BalanceLocked, err = scanDecimal(locked); err != nil {
		return nil, err
	}
	return w, nil
}
