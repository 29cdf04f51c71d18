package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TransitServiceImpl implements ports.TransitService: the escrow state
// machine for funds in flight between a funding wallet and a bookmaker
// account. Initiating a transfer locks the amount inside the wallet;
// confirmation deducts it for real, release returns it. Total and
// locked always move together in one transaction, so the available
// layer (total minus locked) never observes a torn write.
type TransitServiceImpl struct {
	walletRepo   ports.WalletRepository
	transferRepo ports.TransferRepository
	accountRepo  ports.AccountRepository
	auditRepo    ports.AuditRepository
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewTransitService creates a new TransitServiceImpl.
func NewTransitService(
	walletRepo ports.WalletRepository,
	transferRepo ports.TransferRepository,
	accountRepo ports.AccountRepository,
	auditRepo ports.AuditRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransitServiceImpl {
	return &TransitServiceImpl{
		walletRepo:   walletRepo,
		transferRepo: transferRepo,
		accountRepo:  accountRepo,
		auditRepo:    auditRepo,
		transactor:   transactor,
		log:          log,
	}
}

// Initiate opens a PENDING transfer and moves the amount from the
// wallet's available layer into its locked layer.
func (s *TransitServiceImpl) Initiate(ctx context.Context, req ports.InitiateTransferRequest) (*ports.TransitResult, error) {
	if req.Amount.Sign() <= 0 {
		return nil, apperror.Validation("transfer amount must be positive")
	}

	account, err := s.accountRepo.GetByID(ctx, req.DestinationAccountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get destination account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrAccountNotFound().WithContext(map[string]any{
			"account_id": req.DestinationAccountID.String(),
		})
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	wallet, err := s.lockWallet(ctx, tx, req.WalletID)
	if err != nil {
		return nil, err
	}

	available := wallet.Available()
	if available.LessThan(req.Amount) {
		return nil, apperror.ErrInsufficientAvailable().WithContext(map[string]any{
			"wallet_id": wallet.ID.String(),
			"requested": req.Amount.String(),
			"available": available.String(),
		})
	}

	newLocked := wallet.BalanceLocked.Add(req.Amount)
	if err := s.walletRepo.UpdateBalances(ctx, tx, wallet.ID, wallet.BalanceTotal, newLocked); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update wallet balances: %w", err))
	}

	transfer := &domain.TransitTransfer{
		ID:                   uuid.New(),
		WalletID:             wallet.ID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Coin:                 req.Coin,
		Quantity:             req.Quantity,
		Status:               domain.TransferStatusPending,
		CreatedAt:            time.Now(),
	}
	if err := s.transferRepo.Create(ctx, tx, transfer); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create transfer: %w", err))
	}

	if err := s.writeAudit(ctx, tx, domain.AuditActionTransitInitiate, transfer, req.OperatorID, req.ClientIP, map[string]any{
		"amount":          req.Amount.String(),
		"available_after": wallet.BalanceTotal.Sub(newLocked).String(),
	}); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("write audit record: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit transaction: %w", err))
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("amount", req.Amount.String()).
		Msg("transit transfer initiated")

	return &ports.TransitResult{
		Transfer:         transfer,
		BalanceTotal:     wallet.BalanceTotal,
		BalanceLocked:    newLocked,
		BalanceAvailable: wallet.BalanceTotal.Sub(newLocked),
	}, nil
}

// Confirm resolves a PENDING transfer as arrived: the locked amount is
// released and the confirmed amount leaves the wallet's total for good.
// A confirmed amount below the requested one records slippage (network
// fees) without failing the transfer.
func (s *TransitServiceImpl) Confirm(ctx context.Context, req ports.ResolveTransferRequest) (*ports.TransitResult, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	transfer, wallet, err := s.lockPending(ctx, tx, req.TransferID)
	if err != nil {
		return nil, err
	}

	confirmed := transfer.Amount
	if req.ConfirmedAmount != nil {
		confirmed = *req.ConfirmedAmount
	}
	if confirmed.Sign() < 0 {
		return nil, apperror.Validation("confirmed amount must not be negative")
	}

	// The confirmed amount may land above or below the requested amount
	// (network fees, exchange dust); the difference is absorbed by the
	// wallet and surfaces in the audit trail as slippage. Only the locked
	// layer releases the originally locked amount.
	newLocked := wallet.BalanceLocked.Sub(transfer.Amount)
	newTotal := wallet.BalanceTotal.Sub(confirmed)
	if newLocked.Sign() < 0 {
		return nil, apperror.InternalError(fmt.Errorf("wallet %s locked layer below zero", wallet.ID))
	}
	if newTotal.Sub(newLocked).Sign() < 0 {
		return nil, apperror.ErrInsufficientAvailable().WithContext(map[string]any{
			"wallet_id": wallet.ID.String(),
			"confirmed": confirmed.String(),
			"available": wallet.Available().Add(transfer.Amount).String(),
		})
	}

	if err := s.walletRepo.UpdateBalances(ctx, tx, wallet.ID, newTotal, newLocked); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update wallet balances: %w", err))
	}

	now := time.Now()
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	if err := s.transferRepo.Resolve(ctx, tx, transfer.ID, domain.TransferStatusConfirmed, &confirmed, reason, now); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("resolve transfer: %w", err))
	}
	transfer.Status = domain.TransferStatusConfirmed
	transfer.ConfirmedAmount = &confirmed
	transfer.ResolvedAt = &now

	if err := s.writeAudit(ctx, tx, domain.AuditActionTransitConfirm, transfer, req.OperatorID, req.ClientIP, map[string]any{
		"requested": transfer.Amount.String(),
		"confirmed": confirmed.String(),
		"slippage":  transfer.Slippage().String(),
	}); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("write audit record: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit transaction: %w", err))
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("confirmed", confirmed.String()).
		Msg("transit transfer confirmed")

	return &ports.TransitResult{
		Transfer:         transfer,
		BalanceTotal:     newTotal,
		BalanceLocked:    newLocked,
		BalanceAvailable: newTotal.Sub(newLocked),
	}, nil
}

// Release resolves a PENDING transfer without arrival: the locked
// amount returns to the available layer and the total is untouched.
// Reversed marks transfers explicitly undone rather than failed.
func (s *TransitServiceImpl) Release(ctx context.Context, req ports.ResolveTransferRequest) (*ports.TransitResult, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	transfer, wallet, err := s.lockPending(ctx, tx, req.TransferID)
	if err != nil {
		return nil, err
	}

	newLocked := wallet.BalanceLocked.Sub(transfer.Amount)
	if newLocked.Sign() < 0 {
		return nil, apperror.InternalError(fmt.Errorf("wallet %s locked layer below zero", wallet.ID))
	}

	if err := s.walletRepo.UpdateBalances(ctx, tx, wallet.ID, wallet.BalanceTotal, newLocked); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update wallet balances: %w", err))
	}

	status := domain.TransferStatusFailed
	action := domain.AuditActionTransitRelease
	if req.Reversed {
		status = domain.TransferStatusReversed
	}

	now := time.Now()
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	if err := s.transferRepo.Resolve(ctx, tx, transfer.ID, status, nil, reason, now); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("resolve transfer: %w", err))
	}
	transfer.Status = status
	transfer.Reason = reason
	transfer.ResolvedAt = &now

	if err := s.writeAudit(ctx, tx, action, transfer, req.OperatorID, req.ClientIP, map[string]any{
		"amount": transfer.Amount.String(),
		"status": string(status),
		"reason": req.Reason,
	}); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("write audit record: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit transaction: %w", err))
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("status", string(status)).
		Msg("transit transfer released")

	return &ports.TransitResult{
		Transfer:         transfer,
		BalanceTotal:     wallet.BalanceTotal,
		BalanceLocked:    newLocked,
		BalanceAvailable: wallet.BalanceTotal.Sub(newLocked),
	}, nil
}

// lockWallet takes the wallet row lock, translating lock contention and
// missing rows into application errors.
func (s *TransitServiceImpl) lockWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		if errors.Is(err, domain.ErrRowLocked) {
			return nil, apperror.ErrOperationInProgress().WithContext(map[string]any{
				"wallet_id": walletID.String(),
			})
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet %s: %w", walletID, err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound().WithContext(map[string]any{
			"wallet_id": walletID.String(),
		})
	}
	return wallet, nil
}

// lockPending locks a transfer and its wallet, in that order, and
// rejects transfers that already reached a terminal status. Resolution
// always locks transfer before wallet while initiation locks only the
// wallet, so the two paths cannot deadlock.
func (s *TransitServiceImpl) lockPending(ctx context.Context, tx pgx.Tx, transferID uuid.UUID) (*domain.TransitTransfer, *domain.Wallet, error) {
	transfer, err := s.transferRepo.GetByIDForUpdate(ctx, tx, transferID)
	if err != nil {
		if errors.Is(err, domain.ErrRowLocked) {
			return nil, nil, apperror.ErrOperationInProgress().WithContext(map[string]any{
				"transfer_id": transferID.String(),
			})
		}
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("lock transfer %s: %w", transferID, err))
	}
	if transfer == nil {
		return nil, nil, apperror.ErrTransferNotFound().WithContext(map[string]any{
			"transfer_id": transferID.String(),
		})
	}
	if transfer.IsTerminal() {
		return nil, nil, apperror.ErrTransferAlreadyResolved().WithContext(map[string]any{
			"transfer_id": transferID.String(),
			"status":      string(transfer.Status),
		})
	}

	wallet, err := s.lockWallet(ctx, tx, transfer.WalletID)
	if err != nil {
		return nil, nil, err
	}
	return transfer, wallet, nil
}

func (s *TransitServiceImpl) writeAudit(ctx context.Context, tx pgx.Tx, action domain.AuditAction, transfer *domain.TransitTransfer, operatorID *uuid.UUID, clientIP string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return s.auditRepo.CreateInTx(ctx, tx, &domain.AuditLog{
		ID:           uuid.New(),
		OperatorID:   operatorID,
		Action:       action,
		ResourceType: "transit_transfer",
		ResourceID:   transfer.ID.String(),
		Details:      string(raw),
		IPAddress:    clientIP,
		CreatedAt:    time.Now(),
	})
}
