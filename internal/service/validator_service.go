package service

import (
	"context"
	"fmt"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// ValidatorServiceImpl implements ports.ValidatorService: the pre-commit
// invariant gate. It runs purely against a consistent read snapshot and
// takes no locks, so validation gives fast feedback; the mutator closes
// the race window with pessimistic locks at commit time.
type ValidatorServiceImpl struct {
	accountRepo ports.AccountRepository
	creditRepo  ports.CreditRepository
	log         zerolog.Logger
}

// NewValidatorService creates a new ValidatorServiceImpl.
func NewValidatorService(accountRepo ports.AccountRepository, creditRepo ports.CreditRepository, log zerolog.Logger) *ValidatorServiceImpl {
	return &ValidatorServiceImpl{
		accountRepo: accountRepo,
		creditRepo:  creditRepo,
		log:         log,
	}
}

// Validate checks a proposed compound operation against the domain
// invariants. Violations are collected, not short-circuited, so the
// caller sees every problem at once. An error return means the check
// itself could not run (infrastructure), never a business violation.
func (s *ValidatorServiceImpl) Validate(ctx context.Context, op *domain.CompoundOperation) (*domain.ValidationResult, error) {
	var violations []domain.Violation

	violations = append(violations, s.checkStructure(op)...)

	for _, leg := range op.Legs {
		v, err := s.checkLeg(ctx, op, leg)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("validate leg %s: %w", leg.AccountID, err))
		}
		violations = append(violations, v...)
	}

	result := &domain.ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}

	if !result.Valid {
		s.log.Debug().
			Str("reference", op.Reference).
			Int("violations", len(violations)).
			Msg("operation failed validation")
	}

	return result, nil
}

// checkStructure enforces the leg-count and strategy rules.
func (s *ValidatorServiceImpl) checkStructure(op *domain.CompoundOperation) []domain.Violation {
	var violations []domain.Violation

	if len(op.Legs) == 0 {
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationEmptyOperation,
			Message: "operation contains no legs",
		})
		return violations
	}

	if op.Type == domain.OperationTypeArbitrage && len(op.Legs) < 2 {
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationMinLegs,
			Message: "an arbitrage operation requires at least two legs",
			Context: map[string]any{"legs": len(op.Legs), "minimum": 2},
		})
	}

	if op.Strategy == domain.StrategyMiddle {
		if op.Mode != domain.RegistrationModePaired || len(op.Legs) < 2 {
			violations = append(violations, domain.Violation{
				Code:    domain.ViolationStrategyMode,
				Message: "the middle strategy requires paired registration with at least two legs",
				Context: map[string]any{"mode": string(op.Mode), "legs": len(op.Legs)},
			})
		}
	}

	return violations
}

// checkLeg enforces the referential and capacity rules for one leg.
func (s *ValidatorServiceImpl) checkLeg(ctx context.Context, op *domain.CompoundOperation, leg domain.Leg) ([]domain.Violation, error) {
	account, err := s.accountRepo.GetByID(ctx, leg.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return []domain.Violation{{
			Code:    domain.ViolationUnknownAccount,
			Message: "account does not exist",
			Context: map[string]any{"account_id": leg.AccountID.String()},
		}}, nil
	}

	var violations []domain.Violation

	if account.ProjectID != op.ProjectID {
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationCrossProject,
			Message: "account belongs to a different project",
			Context: map[string]any{
				"account_id": leg.AccountID.String(),
				"expected":   op.ProjectID.String(),
				"actual":     account.ProjectID.String(),
			},
		})
	}

	if !account.IsOperable() {
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationAccountInoperable,
			Message: "account is not operable",
			Context: map[string]any{
				"account_id": leg.AccountID.String(),
				"status":     string(account.Status),
			},
		})
	}

	if leg.FundedByCredit {
		splitViolations, err := s.checkSplitLeg(ctx, op, leg, account)
		if err != nil {
			return nil, err
		}
		return append(violations, splitViolations...), nil
	}

	// Capacity only binds debits paid from the main balance. Debits that
	// the resolver will redirect to an active credit consume the overlay
	// instead, and the overlay floors at zero.
	if leg.Delta.Sign() < 0 {
		active, err := s.creditRepo.ListActiveByAccount(ctx, leg.AccountID, op.ProjectID)
		if err != nil {
			return nil, err
		}
		if len(active) == 0 && !account.CanAbsorb(leg.Delta) {
			violations = append(violations, domain.Violation{
				Code:    domain.ViolationInsufficientFunds,
				Message: "leg amount exceeds operable balance",
				Context: map[string]any{
					"account_id": leg.AccountID.String(),
					"required":   leg.Delta.Neg().String(),
					"available":  account.Balance.String(),
				},
			})
		}
	}

	return violations, nil
}

// checkSplitLeg enforces the bounds of an upstream-resolved credit/main
// split: the declared credit portion must be positive, at most the stake,
// covered by the newest active credit's overlay, and the main remainder
// must fit the account balance. The mutator rejects the same bounds at
// commit; reporting them here keeps a bad split from passing validation.
func (s *ValidatorServiceImpl) checkSplitLeg(ctx context.Context, op *domain.CompoundOperation, leg domain.Leg, account *domain.Account) ([]domain.Violation, error) {
	if leg.CreditAmount.Sign() <= 0 || leg.CreditAmount.GreaterThan(leg.Delta.Neg()) {
		return []domain.Violation{{
			Code:    domain.ViolationInvalidSplit,
			Message: "credit portion must be positive and within the stake",
			Context: map[string]any{
				"account_id":    leg.AccountID.String(),
				"delta":         leg.Delta.String(),
				"credit_amount": leg.CreditAmount.String(),
			},
		}}, nil
	}

	var violations []domain.Violation

	active, err := s.creditRepo.ListActiveByAccount(ctx, leg.AccountID, op.ProjectID)
	if err != nil {
		return nil, err
	}
	switch {
	case len(active) == 0:
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationInvalidSplit,
			Message: "no active promotional credit to fund the split",
			Context: map[string]any{"account_id": leg.AccountID.String()},
		})
	case active[0].OverlayBalance.LessThan(leg.CreditAmount):
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationInvalidSplit,
			Message: "active credit overlay does not cover the credit portion",
			Context: map[string]any{
				"account_id":      leg.AccountID.String(),
				"credit_id":       active[0].ID.String(),
				"credit_amount":   leg.CreditAmount.String(),
				"overlay_balance": active[0].OverlayBalance.String(),
			},
		})
	}

	mainDelta := leg.Delta.Add(leg.CreditAmount)
	if !account.CanAbsorb(mainDelta) {
		violations = append(violations, domain.Violation{
			Code:    domain.ViolationInsufficientFunds,
			Message: "main remainder of the split exceeds operable balance",
			Context: map[string]any{
				"account_id": leg.AccountID.String(),
				"required":   mainDelta.Neg().String(),
				"available":  account.Balance.String(),
			},
		})
	}

	return violations, nil
}
