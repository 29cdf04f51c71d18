package service

import (
	"context"
	"testing"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/internal/core/ports/mocks"
	"arb-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transitTestDeps struct {
	svc          *TransitServiceImpl
	walletRepo   *mocks.MockWalletRepository
	transferRepo *mocks.MockTransferRepository
	accountRepo  *mocks.MockAccountRepository
	auditRepo    *mocks.MockAuditRepository
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupTransitService(t *testing.T) *transitTestDeps {
	ctrl := gomock.NewController(t)
	d := &transitTestDeps{
		walletRepo:   mocks.NewMockWalletRepository(ctrl),
		transferRepo: mocks.NewMockTransferRepository(ctrl),
		accountRepo:  mocks.NewMockAccountRepository(ctrl),
		auditRepo:    mocks.NewMockAuditRepository(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewTransitService(
		d.walletRepo, d.transferRepo, d.accountRepo, d.auditRepo,
		d.transactor, zerolog.Nop(),
	)
	return d
}

func testWallet(total, locked int64) *domain.Wallet {
	return &domain.Wallet{
		ID:            uuid.New(),
		Name:          "cold-usdt",
		Coin:          "USDT",
		BalanceTotal:  decimal.NewFromInt(total),
		BalanceLocked: decimal.NewFromInt(locked),
	}
}

func pendingTransfer(walletID uuid.UUID, amount int64) *domain.TransitTransfer {
	return &domain.TransitTransfer{
		ID:                   uuid.New(),
		WalletID:             walletID,
		DestinationAccountID: uuid.New(),
		Amount:               decimal.NewFromInt(amount),
		Coin:                 "USDT",
		Quantity:             decimal.NewFromInt(amount),
		Status:               domain.TransferStatusPending,
		CreatedAt:            time.Now(),
	}
}

func TestTransitService_Initiate_LocksAmount(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 0)
	destination := activeAccount(uuid.New(), 0, 1)

	d.accountRepo.EXPECT().GetByID(ctx, destination.ID).Return(destination, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, _ uuid.UUID, total, locked decimal.Decimal) error {
			assert.True(t, total.Equal(decimal.NewFromInt(1000)))
			assert.True(t, locked.Equal(decimal.NewFromInt(300)))
			return nil
		})
	d.transferRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.Initiate(ctx, ports.InitiateTransferRequest{
		WalletID:             wallet.ID,
		DestinationAccountID: destination.ID,
		Amount:               decimal.NewFromInt(300),
		Coin:                 "USDT",
		Quantity:             decimal.NewFromInt(300),
		ClientIP:             "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransferStatusPending, result.Transfer.Status)
	assert.True(t, result.BalanceTotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.BalanceLocked.Equal(decimal.NewFromInt(300)))
	assert.True(t, result.BalanceAvailable.Equal(decimal.NewFromInt(700)))
}

func TestTransitService_Initiate_InsufficientAvailable(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	// 1000 total but 900 already locked by pending transfers.
	wallet := testWallet(1000, 900)
	destination := activeAccount(uuid.New(), 0, 1)

	d.accountRepo.EXPECT().GetByID(ctx, destination.ID).Return(destination, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)

	_, err := d.svc.Initiate(ctx, ports.InitiateTransferRequest{
		WalletID:             wallet.ID,
		DestinationAccountID: destination.ID,
		Amount:               decimal.NewFromInt(300),
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TRF_001", appErr.Code)
	assert.Equal(t, "100", appErr.Context["available"])
}

func TestTransitService_Initiate_RejectsNonPositiveAmount(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Initiate(context.Background(), ports.InitiateTransferRequest{
		WalletID: uuid.New(),
		Amount:   decimal.Zero,
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "VAL_400", appErr.Code)
}

func TestTransitService_Initiate_UnknownDestination(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	destID := uuid.New()

	d.accountRepo.EXPECT().GetByID(ctx, destID).Return(nil, nil)

	_, err := d.svc.Initiate(ctx, ports.InitiateTransferRequest{
		WalletID:             uuid.New(),
		DestinationAccountID: destID,
		Amount:               decimal.NewFromInt(10),
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "VAL_003", appErr.Code)
}

func TestTransitService_Confirm_WithSlippage(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)
	confirmed := decimal.NewFromInt(295)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, _ uuid.UUID, total, locked decimal.Decimal) error {
			assert.True(t, total.Equal(decimal.NewFromInt(705)))
			assert.True(t, locked.IsZero())
			return nil
		})
	d.transferRepo.EXPECT().Resolve(ctx, tx, transfer.ID, domain.TransferStatusConfirmed, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{
		TransferID:      transfer.ID,
		ConfirmedAmount: &confirmed,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransferStatusConfirmed, result.Transfer.Status)
	assert.True(t, result.BalanceTotal.Equal(decimal.NewFromInt(705)))
	assert.True(t, result.BalanceLocked.IsZero())
	assert.True(t, result.BalanceAvailable.Equal(decimal.NewFromInt(705)))
	require.NotNil(t, result.Transfer.ConfirmedAmount)
	assert.True(t, result.Transfer.Slippage().Equal(decimal.NewFromInt(-5)))
}

func TestTransitService_Confirm_FullAmountByDefault(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).Return(nil)
	d.transferRepo.EXPECT().Resolve(ctx, tx, transfer.ID, domain.TransferStatusConfirmed, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{TransferID: transfer.ID})
	require.NoError(t, err)
	assert.True(t, result.BalanceTotal.Equal(decimal.NewFromInt(700)))
	assert.True(t, result.BalanceAvailable.Equal(decimal.NewFromInt(700)))
}

func TestTransitService_Confirm_AlreadyResolved(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 0)
	transfer := pendingTransfer(wallet.ID, 300)
	transfer.Status = domain.TransferStatusConfirmed

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)

	_, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{TransferID: transfer.ID})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TRF_002", appErr.Code)
	assert.Equal(t, "CONFIRMED", appErr.Context["status"])
}

func TestTransitService_Release_ReturnsLockedFunds(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, _ uuid.UUID, total, locked decimal.Decimal) error {
			assert.True(t, total.Equal(decimal.NewFromInt(1000)))
			assert.True(t, locked.IsZero())
			return nil
		})
	d.transferRepo.EXPECT().Resolve(ctx, tx, transfer.ID, domain.TransferStatusFailed, gomock.Nil(), gomock.Any(), gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.Release(ctx, ports.ResolveTransferRequest{
		TransferID: transfer.ID,
		Reason:     "exchange rejected withdrawal",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransferStatusFailed, result.Transfer.Status)
	assert.True(t, result.BalanceTotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.BalanceAvailable.Equal(decimal.NewFromInt(1000)))
}

func TestTransitService_Release_ReversedStatus(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(500, 100)
	transfer := pendingTransfer(wallet.ID, 100)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).Return(nil)
	d.transferRepo.EXPECT().Resolve(ctx, tx, transfer.ID, domain.TransferStatusReversed, gomock.Nil(), gomock.Any(), gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	result, err := d.svc.Release(ctx, ports.ResolveTransferRequest{
		TransferID: transfer.ID,
		Reversed:   true,
		Reason:     "sent back by bookmaker",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusReversed, result.Transfer.Status)
}

func TestTransitService_Release_WalletLockContention(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(500, 100)
	transfer := pendingTransfer(wallet.ID, 100)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(nil, domain.ErrRowLocked)

	_, err := d.svc.Release(ctx, ports.ResolveTransferRequest{TransferID: transfer.ID})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "CON_002", appErr.Code)
}

func TestTransitService_Confirm_OverConfirmationAbsorbedAsLoss(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)
	confirmed := decimal.NewFromInt(320)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, _ uuid.UUID, total, locked decimal.Decimal) error {
			assert.True(t, total.Equal(decimal.NewFromInt(680)))
			assert.True(t, locked.IsZero())
			return nil
		})
	d.transferRepo.EXPECT().Resolve(ctx, tx, transfer.ID, domain.TransferStatusConfirmed, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().CreateInTx(ctx, tx, gomock.Any()).Return(nil)

	// A receiver-side fee lands above the requested amount; the extra 20
	// leaves the wallet as negative slippage instead of being rejected.
	result, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{
		TransferID:      transfer.ID,
		ConfirmedAmount: &confirmed,
	})
	require.NoError(t, err)

	assert.True(t, result.BalanceTotal.Equal(decimal.NewFromInt(680)))
	assert.True(t, result.BalanceAvailable.Equal(decimal.NewFromInt(680)))
	assert.True(t, result.Transfer.Slippage().Equal(decimal.NewFromInt(20)))
}

func TestTransitService_Confirm_RejectsConfirmationBeyondWallet(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)
	confirmed := decimal.NewFromInt(1100)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)

	// Slippage is bounded by the wallet: a confirmed amount that would
	// push the available layer negative fails the whole confirmation.
	_, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{
		TransferID:      transfer.ID,
		ConfirmedAmount: &confirmed,
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "TRF_001", appErr.Code)
	assert.Equal(t, "1000", appErr.Context["available"])
}

func TestTransitService_Confirm_RejectsNegativeConfirmation(t *testing.T) {
	d := setupTransitService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet(1000, 300)
	transfer := pendingTransfer(wallet.ID, 300)
	confirmed := decimal.NewFromInt(-1)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.transferRepo.EXPECT().GetByIDForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)

	_, err := d.svc.Confirm(ctx, ports.ResolveTransferRequest{
		TransferID:      transfer.ID,
		ConfirmedAmount: &confirmed,
	})
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "VAL_400", appErr.Code)
}
