package service

import (
	"context"
	"testing"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports/mocks"
	"arb-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type overlayTestDeps struct {
	svc        *OverlayServiceImpl
	creditRepo *mocks.MockCreditRepository
	settleRepo *mocks.MockSettlementRepository
	auditRepo  *mocks.MockAuditRepository
	ctrl       *gomock.Controller
}

func setupOverlayService(t *testing.T) *overlayTestDeps {
	ctrl := gomock.NewController(t)
	d := &overlayTestDeps{
		creditRepo: mocks.NewMockCreditRepository(ctrl),
		settleRepo: mocks.NewMockSettlementRepository(ctrl),
		auditRepo:  mocks.NewMockAuditRepository(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewOverlayService(d.creditRepo, d.settleRepo, d.auditRepo, zerolog.Nop())
	return d
}

func activeCredit(accountID, projectID uuid.UUID, overlay int64) *domain.PromotionalCredit {
	return &domain.PromotionalCredit{
		ID:             uuid.New(),
		AccountID:      accountID,
		ProjectID:      projectID,
		Amount:         decimal.NewFromInt(overlay),
		Status:         domain.CreditStatusCredited,
		RolloverTarget: decimal.NewFromInt(overlay * 5),
		OverlayBalance: decimal.NewFromInt(overlay),
		GrantedAt:      time.Now().Add(-24 * time.Hour),
	}
}

func TestOverlayService_Route_NoActiveCredit(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID, projectID := uuid.New(), uuid.New()
	tx := &mockTx{}

	d.creditRepo.EXPECT().GetActive(ctx, tx, accountID, projectID).Return(nil, nil)

	decision, err := d.svc.Route(ctx, tx, accountID, projectID, decimal.NewFromInt(-20))
	require.NoError(t, err)
	assert.Equal(t, domain.RouteTargetMain, decision.Target)
	assert.Nil(t, decision.Credit)
}

func TestOverlayService_Route_ActiveCreditRedirects(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID, projectID := uuid.New(), uuid.New()
	tx := &mockTx{}
	credit := activeCredit(accountID, projectID, 50)

	d.creditRepo.EXPECT().GetActive(ctx, tx, accountID, projectID).Return(credit, nil)

	decision, err := d.svc.Route(ctx, tx, accountID, projectID, decimal.NewFromInt(-20))
	require.NoError(t, err)
	assert.Equal(t, domain.RouteTargetOverlay, decision.Target)
	assert.Equal(t, credit.ID, decision.Credit.ID)
}

func TestOverlayService_ApplyToOverlay_FloorsAtZero(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	credit := activeCredit(uuid.New(), uuid.New(), 30)

	// Debit of 45 against a 30 overlay exhausts it instead of going
	// negative.
	d.creditRepo.EXPECT().UpdateOverlayBalance(ctx, tx, credit.ID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, _ uuid.UUID, newOverlay decimal.Decimal) error {
			assert.True(t, newOverlay.IsZero())
			return nil
		})

	after, err := d.svc.ApplyToOverlay(ctx, tx, credit, decimal.NewFromInt(-45))
	require.NoError(t, err)
	assert.True(t, after.IsZero())
}

func TestOverlayService_ApplyToOverlay_CreditsAccumulate(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	credit := activeCredit(uuid.New(), uuid.New(), 30)

	d.creditRepo.EXPECT().UpdateOverlayBalance(ctx, tx, credit.ID, gomock.Any()).Return(nil)

	after, err := d.svc.ApplyToOverlay(ctx, tx, credit, decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.True(t, after.Equal(decimal.NewFromInt(45)))
}

func TestOverlayService_ResyncRollover_RecomputesFromLedger(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID, projectID := uuid.New(), uuid.New()
	credit := activeCredit(accountID, projectID, 50)
	credit.RolloverProgress = decimal.NewFromInt(999) // drifted cache

	turnover := decimal.NewFromInt(120)

	d.creditRepo.EXPECT().ListActiveByAccount(ctx, accountID, projectID).
		Return([]domain.PromotionalCredit{*credit}, nil)
	d.settleRepo.EXPECT().SumTurnover(ctx, credit.ID, credit.GrantedAt).Return(turnover, nil)
	d.creditRepo.EXPECT().UpdateRolloverProgress(ctx, credit.ID, turnover).Return(nil)

	resynced, err := d.svc.ResyncRollover(ctx, accountID, projectID)
	require.NoError(t, err)
	require.Len(t, resynced, 1)
	assert.True(t, resynced[0].RolloverProgress.Equal(turnover))
}

func TestOverlayService_ResyncRollover_Idempotent(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID, projectID := uuid.New(), uuid.New()
	credit := activeCredit(accountID, projectID, 50)
	turnover := decimal.NewFromInt(80)

	d.creditRepo.EXPECT().ListActiveByAccount(ctx, accountID, projectID).
		Return([]domain.PromotionalCredit{*credit}, nil).Times(2)
	d.settleRepo.EXPECT().SumTurnover(ctx, credit.ID, credit.GrantedAt).Return(turnover, nil).Times(2)
	d.creditRepo.EXPECT().UpdateRolloverProgress(ctx, credit.ID, turnover).Return(nil).Times(2)

	first, err := d.svc.ResyncRollover(ctx, accountID, projectID)
	require.NoError(t, err)
	second, err := d.svc.ResyncRollover(ctx, accountID, projectID)
	require.NoError(t, err)

	assert.True(t, first[0].RolloverProgress.Equal(second[0].RolloverProgress))
}

func TestOverlayService_ResyncRollover_NoActiveCredits(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	accountID, projectID := uuid.New(), uuid.New()

	d.creditRepo.EXPECT().ListActiveByAccount(ctx, accountID, projectID).Return(nil, nil)

	resynced, err := d.svc.ResyncRollover(ctx, accountID, projectID)
	require.NoError(t, err)
	assert.Empty(t, resynced)
}

func TestOverlayService_FinalizeCredit_Success(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	credit := activeCredit(uuid.New(), uuid.New(), 50)

	d.creditRepo.EXPECT().GetByID(ctx, credit.ID).Return(credit, nil)
	d.creditRepo.EXPECT().Finalize(ctx, credit.ID, domain.CreditStatusFinalized, gomock.Any()).Return(nil)

	finalized, err := d.svc.FinalizeCredit(ctx, credit.ID, domain.CreditStatusFinalized)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditStatusFinalized, finalized.Status)
	assert.NotNil(t, finalized.FinalizedAt)
}

func TestOverlayService_FinalizeCredit_AlreadyTerminal(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	credit := activeCredit(uuid.New(), uuid.New(), 0)
	credit.Status = domain.CreditStatusExpired

	d.creditRepo.EXPECT().GetByID(ctx, credit.ID).Return(credit, nil)

	_, err := d.svc.FinalizeCredit(ctx, credit.ID, domain.CreditStatusFinalized)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PRM_002", appErr.Code)
}

func TestOverlayService_FinalizeCredit_RejectsNonTerminalOutcome(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.FinalizeCredit(context.Background(), uuid.New(), domain.CreditStatusCredited)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "VAL_400", appErr.Code)
}

func TestOverlayService_FinalizeCredit_NotFound(t *testing.T) {
	d := setupOverlayService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	creditID := uuid.New()

	d.creditRepo.EXPECT().GetByID(ctx, creditID).Return(nil, nil)

	_, err := d.svc.FinalizeCredit(ctx, creditID, domain.CreditStatusReversed)
	require.Error(t, err)

	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PRM_001", appErr.Code)
}
