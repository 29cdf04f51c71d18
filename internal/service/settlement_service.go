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
	"github.com/shopspring/decimal"
)

// resultCacheTTL bounds how long a committed result answers replays of
// the same (project, reference) pair.
const resultCacheTTL = 24 * time.Hour

// SettlementServiceImpl implements ports.SettlementService: the atomic
// multi-account mutator. A commit applies every leg of a compound
// operation inside one database transaction, locking accounts in a
// deterministic order with NOWAIT semantics and fencing each write on
// the version the caller last observed. Any failed precondition rolls
// the whole operation back.
type SettlementServiceImpl struct {
	accountRepo    ports.AccountRepository
	settlementRepo ports.SettlementRepository
	auditRepo      ports.AuditRepository
	overlaySvc     ports.OverlayService
	resultCache    ports.ResultCache
	transactor     ports.DBTransactor
	log            zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	accountRepo ports.AccountRepository,
	settlementRepo ports.SettlementRepository,
	auditRepo ports.AuditRepository,
	overlaySvc ports.OverlayService,
	resultCache ports.ResultCache,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		accountRepo:    accountRepo,
		settlementRepo: settlementRepo,
		auditRepo:      auditRepo,
		overlaySvc:     overlaySvc,
		resultCache:    resultCache,
		transactor:     transactor,
		log:            log,
	}
}

// Commit applies a compound operation atomically. Legs are processed in
// lock order (ascending account id) so concurrent commits over
// overlapping account sets cannot deadlock; a row already locked by
// another writer fails the commit immediately rather than queueing.
func (s *SettlementServiceImpl) Commit(ctx context.Context, req ports.CommitRequest) (*domain.CommitResult, error) {
	op := req.Operation

	if len(op.Legs) == 0 {
		return nil, apperror.Validation("operation contains no legs")
	}
	if op.Type == domain.OperationTypeArbitrage && len(op.Legs) < 2 {
		return nil, apperror.ErrValidationFailed().WithContext(map[string]any{
			"code": domain.ViolationMinLegs,
			"legs": len(op.Legs),
		})
	}

	cacheKey := s.cacheKey(op)
	if cached := s.cachedResult(ctx, cacheKey); cached != nil {
		s.log.Info().Str("reference", op.Reference).Msg("commit replayed from result cache")
		return cached, nil
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	result := &domain.CommitResult{Reference: op.Reference}
	for _, leg := range op.LegsInLockOrder() {
		legResult, err := s.applyLeg(ctx, tx, op, leg)
		if err != nil {
			return nil, err
		}
		result.Legs = append(result.Legs, *legResult)
	}

	if err := s.writeAudit(ctx, tx, req, result); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("write audit record: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit transaction: %w", err))
	}

	s.storeResult(ctx, cacheKey, result)

	s.log.Info().
		Str("reference", op.Reference).
		Str("project_id", op.ProjectID.String()).
		Str("type", string(op.Type)).
		Int("legs", len(result.Legs)).
		Msg("compound operation committed")

	return result, nil
}

// applyLeg locks one account, fences its version and applies the leg's
// delta to the main balance, the promotional overlay, or an explicit
// split between the two.
func (s *SettlementServiceImpl) applyLeg(ctx context.Context, tx pgx.Tx, op *domain.CompoundOperation, leg domain.Leg) (*domain.LegResult, error) {
	account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, leg.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrRowLocked) {
			return nil, apperror.ErrOperationInProgress().WithContext(map[string]any{
				"account_id": leg.AccountID.String(),
			})
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock account %s: %w", leg.AccountID, err))
	}
	if account == nil {
		return nil, apperror.ErrAccountNotFound().WithContext(map[string]any{
			"account_id": leg.AccountID.String(),
		})
	}
	if account.ProjectID != op.ProjectID {
		return nil, apperror.ErrAccountNotFound().WithContext(map[string]any{
			"account_id": leg.AccountID.String(),
		})
	}
	if !account.IsOperable() {
		return nil, apperror.ErrAccountInoperable().WithContext(map[string]any{
			"account_id": leg.AccountID.String(),
			"status":     string(account.Status),
		})
	}
	if account.Version != leg.ExpectedVersion {
		return nil, apperror.ErrVersionConflict().WithContext(map[string]any{
			"account_id":     leg.AccountID.String(),
			"held_version":   leg.ExpectedVersion,
			"stored_version": account.Version,
		})
	}

	if leg.FundedByCredit {
		return s.applySplitLeg(ctx, tx, op, leg, account)
	}

	decision, err := s.overlaySvc.Route(ctx, tx, leg.AccountID, op.ProjectID, leg.Delta)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if decision.Target == domain.RouteTargetOverlay {
		return s.applyOverlayLeg(ctx, tx, op, leg, account, decision.Credit)
	}
	return s.applyMainLeg(ctx, tx, op, leg, account)
}

// applyMainLeg applies the full delta to the account's main balance,
// bumping its version.
func (s *SettlementServiceImpl) applyMainLeg(ctx context.Context, tx pgx.Tx, op *domain.CompoundOperation, leg domain.Leg, account *domain.Account) (*domain.LegResult, error) {
	if !account.CanAbsorb(leg.Delta) {
		return nil, apperror.ErrInsufficientBalance().WithContext(map[string]any{
			"account_id": account.ID.String(),
			"required":   leg.Delta.Neg().String(),
			"available":  account.Balance.String(),
		})
	}

	newBalance := account.Balance.Add(leg.Delta)
	newVersion := account.Version + 1

	if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, newBalance, newVersion, account.Version); err != nil {
		if errors.Is(err, domain.ErrStaleVersion) {
			return nil, apperror.ErrVersionConflict().WithContext(map[string]any{
				"account_id": account.ID.String(),
			})
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
	}

	if err := s.writeLedgerEntry(ctx, tx, op, account, nil, leg.Delta, account.Balance, newBalance); err != nil {
		return nil, err
	}

	return &domain.LegResult{
		AccountID:     account.ID,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		NewVersion:    newVersion,
		RoutedTo:      domain.RouteTargetMain,
	}, nil
}

// applyOverlayLeg redirects the full delta to an active credit's overlay.
// The account row itself is untouched, so its version does not move.
func (s *SettlementServiceImpl) applyOverlayLeg(ctx context.Context, tx pgx.Tx, op *domain.CompoundOperation, leg domain.Leg, account *domain.Account, credit *domain.PromotionalCredit) (*domain.LegResult, error) {
	before := credit.OverlayBalance
	after, err := s.overlaySvc.ApplyToOverlay(ctx, tx, credit, leg.Delta)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if err := s.writeLedgerEntry(ctx, tx, op, account, &credit.ID, leg.Delta, before, after); err != nil {
		return nil, err
	}

	creditID := credit.ID
	return &domain.LegResult{
		AccountID:     account.ID,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance,
		NewVersion:    account.Version,
		RoutedTo:      domain.RouteTargetOverlay,
		CreditID:      &creditID,
	}, nil
}

// applySplitLeg handles a leg whose promotional/main split was already
// resolved upstream: CreditAmount of the stake comes from an active
// credit's overlay and the remainder from the main balance. Overlay
// routing is bypassed for the main remainder. A split that cannot be
// honored as declared fails the whole operation; the credit portion is
// never clamped to what the overlay happens to hold.
func (s *SettlementServiceImpl) applySplitLeg(ctx context.Context, tx pgx.Tx, op *domain.CompoundOperation, leg domain.Leg, account *domain.Account) (*domain.LegResult, error) {
	if leg.CreditAmount.Sign() <= 0 || leg.CreditAmount.GreaterThan(leg.Delta.Neg()) {
		return nil, apperror.ErrInvalidCreditSplit().WithContext(map[string]any{
			"account_id":    account.ID.String(),
			"delta":         leg.Delta.String(),
			"credit_amount": leg.CreditAmount.String(),
		})
	}

	decision, err := s.overlaySvc.Route(ctx, tx, leg.AccountID, op.ProjectID, leg.CreditAmount.Neg())
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if decision.Credit == nil {
		return nil, apperror.ErrCreditNotFound().WithContext(map[string]any{
			"account_id": account.ID.String(),
		})
	}
	credit := decision.Credit

	if credit.OverlayBalance.LessThan(leg.CreditAmount) {
		return nil, apperror.ErrInvalidCreditSplit().WithContext(map[string]any{
			"account_id":      account.ID.String(),
			"credit_id":       credit.ID.String(),
			"credit_amount":   leg.CreditAmount.String(),
			"overlay_balance": credit.OverlayBalance.String(),
		})
	}

	mainDelta := leg.Delta.Add(leg.CreditAmount)
	if !account.CanAbsorb(mainDelta) {
		return nil, apperror.ErrInsufficientBalance().WithContext(map[string]any{
			"account_id": account.ID.String(),
			"required":   mainDelta.Neg().String(),
			"available":  account.Balance.String(),
		})
	}

	overlayBefore := credit.OverlayBalance
	overlayAfter, err := s.overlaySvc.ApplyToOverlay(ctx, tx, credit, leg.CreditAmount.Neg())
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if err := s.writeLedgerEntry(ctx, tx, op, account, &credit.ID, leg.CreditAmount.Neg(), overlayBefore, overlayAfter); err != nil {
		return nil, err
	}

	newBalance := account.Balance
	newVersion := account.Version
	if !mainDelta.IsZero() {
		newBalance = account.Balance.Add(mainDelta)
		newVersion = account.Version + 1
		if err := s.accountRepo.UpdateBalance(ctx, tx, account.ID, newBalance, newVersion, account.Version); err != nil {
			if errors.Is(err, domain.ErrStaleVersion) {
				return nil, apperror.ErrVersionConflict().WithContext(map[string]any{
					"account_id": account.ID.String(),
				})
			}
			return nil, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
		}
		if err := s.writeLedgerEntry(ctx, tx, op, account, nil, mainDelta, account.Balance, newBalance); err != nil {
			return nil, err
		}
	}

	creditID := credit.ID
	return &domain.LegResult{
		AccountID:     account.ID,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		NewVersion:    newVersion,
		RoutedTo:      domain.RouteTargetOverlay,
		CreditID:      &creditID,
	}, nil
}

func (s *SettlementServiceImpl) writeLedgerEntry(ctx context.Context, tx pgx.Tx, op *domain.CompoundOperation, account *domain.Account, creditID *uuid.UUID, amount, before, after decimal.Decimal) error {
	entry := &domain.SettlementEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		ProjectID:     op.ProjectID,
		CreditID:      creditID,
		Reference:     op.Reference,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		OriginTag:     op.AuditTag,
		CreatedAt:     time.Now(),
	}
	if err := s.settlementRepo.Create(ctx, tx, entry); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("write ledger entry: %w", err))
	}
	return nil
}

func (s *SettlementServiceImpl) writeAudit(ctx context.Context, tx pgx.Tx, req ports.CommitRequest, result *domain.CommitResult) error {
	details, err := json.Marshal(map[string]any{
		"type":      string(req.Operation.Type),
		"strategy":  string(req.Operation.Strategy),
		"audit_tag": req.Operation.AuditTag,
		"legs":      result.Legs,
	})
	if err != nil {
		return err
	}

	return s.auditRepo.CreateInTx(ctx, tx, &domain.AuditLog{
		ID:           uuid.New(),
		OperatorID:   req.OperatorID,
		Action:       domain.AuditActionCommit,
		ResourceType: "compound_operation",
		ResourceID:   req.Operation.Reference,
		Details:      string(details),
		IPAddress:    req.ClientIP,
		CreatedAt:    time.Now(),
	})
}

func (s *SettlementServiceImpl) cacheKey(op *domain.CompoundOperation) string {
	if op.Reference == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", op.ProjectID, op.Reference)
}

// cachedResult returns the previously committed result for the key, or
// nil. Cache failures degrade to a fresh commit attempt; the version
// fence still protects against double application.
func (s *SettlementServiceImpl) cachedResult(ctx context.Context, key string) *domain.CommitResult {
	if key == "" {
		return nil
	}
	raw, err := s.resultCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("result cache lookup failed")
		return nil
	}
	if raw == nil {
		return nil
	}
	var result domain.CommitResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("result cache entry malformed")
		return nil
	}
	return &result
}

func (s *SettlementServiceImpl) storeResult(ctx context.Context, key string, result *domain.CommitResult) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.resultCache.Set(ctx, key, raw, resultCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("result cache store failed")
	}
}
