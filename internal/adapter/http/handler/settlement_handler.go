package handler

import (
	"arb-settlement-engine/internal/adapter/http/dto"
	"arb-settlement-engine/internal/adapter/http/middleware"
	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"
	"arb-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SettlementHandler handles compound operation validation and commit.
type SettlementHandler struct {
	validatorSvc  ports.ValidatorService
	settlementSvc ports.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(validatorSvc ports.ValidatorService, settlementSvc ports.SettlementService) *SettlementHandler {
	return &SettlementHandler{validatorSvc: validatorSvc, settlementSvc: settlementSvc}
}

// Validate handles POST /api/v1/settlements/validate.
func (h *SettlementHandler) Validate(c *gin.Context) {
	op, err := bindOperation(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.validatorSvc.Validate(c.Request.Context(), op)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toValidationResponse(result))
}

// Commit handles POST /api/v1/settlements/commit. The operation is
// re-validated before the mutator runs: validation and commit are
// separate requests and the world may have moved between them.
func (h *SettlementHandler) Commit(c *gin.Context) {
	op, err := bindOperation(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	verdict, err := h.validatorSvc.Validate(c.Request.Context(), op)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !verdict.Valid {
		response.Error(c, apperror.ErrValidationFailed().WithContext(map[string]any{
			"violations": verdict.Violations,
		}))
		return
	}

	result, err := h.settlementSvc.Commit(c.Request.Context(), ports.CommitRequest{
		Operation:  op,
		OperatorID: operatorID(c),
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toCommitResponse(result))
}

// bindOperation parses and converts an operation request body.
func bindOperation(c *gin.Context) (*domain.CompoundOperation, error) {
	var req dto.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return nil, apperror.Validation("project_id is not a valid UUID")
	}

	legs := make([]domain.Leg, 0, len(req.Legs))
	for _, l := range req.Legs {
		accountID, err := uuid.Parse(l.AccountID)
		if err != nil {
			return nil, apperror.Validation("account_id is not a valid UUID")
		}
		legs = append(legs, domain.Leg{
			AccountID:       accountID,
			Delta:           l.Delta,
			ExpectedVersion: l.ExpectedVersion,
			FundedByCredit:  l.FundedByCredit,
			CreditAmount:    l.CreditAmount,
		})
	}

	return &domain.CompoundOperation{
		Reference: req.Reference,
		ProjectID: projectID,
		Type:      domain.OperationType(req.Type),
		Strategy:  domain.Strategy(req.Strategy),
		Mode:      domain.RegistrationMode(req.Mode),
		AuditTag:  req.AuditTag,
		Legs:      legs,
	}, nil
}

// operatorID extracts the authenticated operator from the request
// context, nil when the route is unauthenticated.
func operatorID(c *gin.Context) *uuid.UUID {
	if oid, exists := c.Get(middleware.CtxOperatorID); exists {
		if id, ok := oid.(uuid.UUID); ok {
			return &id
		}
	}
	return nil
}

func toValidationResponse(result *domain.ValidationResult) dto.ValidationResponse {
	violations := make([]dto.ViolationResponse, 0, len(result.Violations))
	for _, v := range result.Violations {
		violations = append(violations, dto.ViolationResponse{
			Code:    v.Code,
			Message: v.Message,
			Context: v.Context,
		})
	}
	return dto.ValidationResponse{Valid: result.Valid, Violations: violations}
}

func toCommitResponse(result *domain.CommitResult) dto.CommitResponse {
	legs := make([]dto.LegResultResponse, 0, len(result.Legs))
	for _, l := range result.Legs {
		leg := dto.LegResultResponse{
			AccountID:     l.AccountID.String(),
			BalanceBefore: l.BalanceBefore.String(),
			BalanceAfter:  l.BalanceAfter.String(),
			NewVersion:    l.NewVersion,
			RoutedTo:      string(l.RoutedTo),
		}
		if l.CreditID != nil {
			leg.CreditID = l.CreditID.String()
		}
		legs = append(legs, leg)
	}
	return dto.CommitResponse{Reference: result.Reference, Legs: legs}
}
