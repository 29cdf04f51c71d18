package handler

import (
	"arb-settlement-engine/internal/adapter/http/dto"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"
	"arb-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles transit transfer endpoints.
type TransferHandler struct {
	transitSvc ports.TransitService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transitSvc ports.TransitService) *TransferHandler {
	return &TransferHandler{transitSvc: transitSvc}
}

// Initiate handles POST /api/v1/transfers.
func (h *TransferHandler) Initiate(c *gin.Context) {
	var req dto.InitiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		response.Error(c, apperror.Validation("wallet_id is not a valid UUID"))
		return
	}
	destinationID, err := uuid.Parse(req.DestinationAccountID)
	if err != nil {
		response.Error(c, apperror.Validation("destination_account_id is not a valid UUID"))
		return
	}

	result, err := h.transitSvc.Initiate(c.Request.Context(), ports.InitiateTransferRequest{
		WalletID:             walletID,
		DestinationAccountID: destinationID,
		Amount:               req.Amount,
		Coin:                 req.Coin,
		Quantity:             req.Quantity,
		OperatorID:           operatorID(c),
		ClientIP:             c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransferResponse(result))
}

// Confirm handles POST /api/v1/transfers/:id/confirm.
func (h *TransferHandler) Confirm(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transfer id is not a valid UUID"))
		return
	}

	var req dto.ConfirmTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.transitSvc.Confirm(c.Request.Context(), ports.ResolveTransferRequest{
		TransferID:      transferID,
		ConfirmedAmount: req.ConfirmedAmount,
		Reason:          req.Reason,
		OperatorID:      operatorID(c),
		ClientIP:        c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransferResponse(result))
}

// Fail handles POST /api/v1/transfers/:id/fail.
func (h *TransferHandler) Fail(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("transfer id is not a valid UUID"))
		return
	}

	var req dto.FailTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.transitSvc.Release(c.Request.Context(), ports.ResolveTransferRequest{
		TransferID: transferID,
		Reversed:   req.Intent == "reversed",
		Reason:     req.Reason,
		OperatorID: operatorID(c),
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransferResponse(result))
}

func toTransferResponse(result *ports.TransitResult) dto.TransferResponse {
	t := result.Transfer
	resp := dto.TransferResponse{
		ID:                   t.ID.String(),
		WalletID:             t.WalletID.String(),
		DestinationAccountID: t.DestinationAccountID.String(),
		Amount:               t.Amount.String(),
		Coin:                 t.Coin,
		Status:               string(t.Status),
		Reason:               t.Reason,
		BalanceTotal:         result.BalanceTotal.String(),
		BalanceLocked:        result.BalanceLocked.String(),
		BalanceAvailable:     result.BalanceAvailable.String(),
	}
	if t.ConfirmedAmount != nil {
		s := t.ConfirmedAmount.String()
		resp.ConfirmedAmount = &s
	}
	return resp
}
