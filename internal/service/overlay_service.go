package service

import (
	"context"
	"fmt"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OverlayServiceImpl implements ports.OverlayService: routing of balance
// deltas between the main balance and the promotional overlay, plus the
// rollover resync that recomputes wagering progress from the ledger.
type OverlayServiceImpl struct {
	creditRepo     ports.CreditRepository
	settlementRepo ports.SettlementRepository
	auditRepo      ports.AuditRepository
	log            zerolog.Logger
}

// NewOverlayService creates a new OverlayServiceImpl.
func NewOverlayService(creditRepo ports.CreditRepository, settlementRepo ports.SettlementRepository, auditRepo ports.AuditRepository, log zerolog.Logger) *OverlayServiceImpl {
	return &OverlayServiceImpl{
		creditRepo:     creditRepo,
		settlementRepo: settlementRepo,
		auditRepo:      auditRepo,
		log:            log,
	}
}

// Route decides where a balance delta for an account lands. If the
// account holds an active promotional credit the delta is redirected to
// that credit's overlay; otherwise it applies to the main balance.
func (s *OverlayServiceImpl) Route(ctx context.Context, tx pgx.Tx, accountID, projectID uuid.UUID, delta decimal.Decimal) (*domain.RouteDecision, error) {
	credit, err := s.creditRepo.GetActive(ctx, tx, accountID, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve active credit: %w", err)
	}
	if credit == nil {
		return &domain.RouteDecision{Target: domain.RouteTargetMain}, nil
	}
	return &domain.RouteDecision{Target: domain.RouteTargetOverlay, Credit: credit}, nil
}

// ApplyToOverlay applies a delta to a credit's overlay balance inside
// the caller's transaction. The overlay floors at zero: a debit larger
// than the remaining overlay exhausts it rather than going negative.
func (s *OverlayServiceImpl) ApplyToOverlay(ctx context.Context, tx pgx.Tx, credit *domain.PromotionalCredit, delta decimal.Decimal) (decimal.Decimal, error) {
	newBalance := credit.OverlayBalance.Add(delta)
	if newBalance.Sign() < 0 {
		newBalance = decimal.Zero
	}

	if err := s.creditRepo.UpdateOverlayBalance(ctx, tx, credit.ID, newBalance); err != nil {
		return decimal.Zero, fmt.Errorf("update overlay balance: %w", err)
	}
	return newBalance, nil
}

// ResyncRollover recomputes the rollover progress of every active credit
// on an account from the settlement ledger and persists the result. The
// computation is a pure function of the ledger, so running it twice in a
// row yields the same numbers; any drift introduced by partial failures
// is repaired rather than accumulated.
func (s *OverlayServiceImpl) ResyncRollover(ctx context.Context, accountID, projectID uuid.UUID) ([]domain.PromotionalCredit, error) {
	credits, err := s.creditRepo.ListActiveByAccount(ctx, accountID, projectID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list active credits: %w", err))
	}

	resynced := make([]domain.PromotionalCredit, 0, len(credits))
	for _, credit := range credits {
		turnover, err := s.settlementRepo.SumTurnover(ctx, credit.ID, credit.GrantedAt)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("sum turnover for credit %s: %w", credit.ID, err))
		}

		if err := s.creditRepo.UpdateRolloverProgress(ctx, credit.ID, turnover); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update rollover progress for credit %s: %w", credit.ID, err))
		}

		credit.RolloverProgress = turnover
		resynced = append(resynced, credit)

		s.log.Info().
			Str("credit_id", credit.ID.String()).
			Str("account_id", accountID.String()).
			Str("rollover_progress", turnover.String()).
			Str("rollover_target", credit.RolloverTarget.String()).
			Msg("rollover progress resynced")
	}

	return resynced, nil
}

// FinalizeCredit moves a credit into a terminal status. Once terminal a
// credit never routes again and never changes status.
func (s *OverlayServiceImpl) FinalizeCredit(ctx context.Context, creditID uuid.UUID, outcome domain.CreditStatus) (*domain.PromotionalCredit, error) {
	switch outcome {
	case domain.CreditStatusFinalized, domain.CreditStatusExpired, domain.CreditStatusFailed, domain.CreditStatusReversed:
	default:
		return nil, apperror.Validation(fmt.Sprintf("outcome %q is not a terminal credit status", outcome))
	}

	credit, err := s.creditRepo.GetByID(ctx, creditID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get credit: %w", err))
	}
	if credit == nil {
		return nil, apperror.ErrCreditNotFound().WithContext(map[string]any{"credit_id": creditID.String()})
	}
	if credit.Status != domain.CreditStatusCredited {
		return nil, apperror.ErrCreditFinalized().WithContext(map[string]any{
			"credit_id": creditID.String(),
			"status":    string(credit.Status),
		})
	}

	now := time.Now()
	if err := s.creditRepo.Finalize(ctx, creditID, outcome, now); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("finalize credit: %w", err))
	}

	credit.Status = outcome
	credit.FinalizedAt = &now

	s.log.Info().
		Str("credit_id", creditID.String()).
		Str("outcome", string(outcome)).
		Msg("promotional credit finalized")

	return credit, nil
}
