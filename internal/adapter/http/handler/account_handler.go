package handler

import (
	"arb-settlement-engine/internal/adapter/http/dto"
	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"
	"arb-settlement-engine/pkg/apperror"
	"arb-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles account, wallet and promotional credit views.
type AccountHandler struct {
	accountRepo ports.AccountRepository
	walletRepo  ports.WalletRepository
	overlaySvc  ports.OverlayService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountRepo ports.AccountRepository, walletRepo ports.WalletRepository, overlaySvc ports.OverlayService) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo, walletRepo: walletRepo, overlaySvc: overlaySvc}
}

// GetAccount handles GET /api/v1/accounts/:id.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("account id is not a valid UUID"))
		return
	}

	account, err := h.accountRepo.GetByID(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if account == nil {
		response.Error(c, apperror.ErrAccountNotFound())
		return
	}

	response.OK(c, dto.AccountResponse{
		ID:        account.ID.String(),
		ProjectID: account.ProjectID.String(),
		Bookmaker: account.Bookmaker,
		Currency:  account.Currency,
		Balance:   account.Balance.String(),
		Version:   account.Version,
		Status:    string(account.Status),
	})
}

// GetWallet handles GET /api/v1/wallets/:id.
func (h *AccountHandler) GetWallet(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id is not a valid UUID"))
		return
	}

	wallet, err := h.walletRepo.GetByID(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if wallet == nil {
		response.Error(c, apperror.ErrWalletNotFound())
		return
	}

	response.OK(c, dto.WalletResponse{
		ID:               wallet.ID.String(),
		Name:             wallet.Name,
		Coin:             wallet.Coin,
		BalanceTotal:     wallet.BalanceTotal.String(),
		BalanceLocked:    wallet.BalanceLocked.String(),
		BalanceAvailable: wallet.Available().String(),
	})
}

// ResyncCredits handles POST /api/v1/credits/resync.
func (h *AccountHandler) ResyncCredits(c *gin.Context) {
	var req dto.ResyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		response.Error(c, apperror.Validation("account_id is not a valid UUID"))
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		response.Error(c, apperror.Validation("project_id is not a valid UUID"))
		return
	}

	credits, err := h.overlaySvc.ResyncRollover(c.Request.Context(), accountID, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.CreditResponse, 0, len(credits))
	for _, credit := range credits {
		out = append(out, toCreditResponse(&credit))
	}
	response.OK(c, out)
}

// FinalizeCredit handles POST /api/v1/credits/:id/finalize.
func (h *AccountHandler) FinalizeCredit(c *gin.Context) {
	creditID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("credit id is not a valid UUID"))
		return
	}

	var req dto.FinalizeCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	credit, err := h.overlaySvc.FinalizeCredit(c.Request.Context(), creditID, domain.CreditStatus(req.Outcome))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toCreditResponse(credit))
}

func toCreditResponse(credit *domain.PromotionalCredit) dto.CreditResponse {
	return dto.CreditResponse{
		ID:               credit.ID.String(),
		AccountID:        credit.AccountID.String(),
		Amount:           credit.Amount.String(),
		Status:           string(credit.Status),
		RolloverTarget:   credit.RolloverTarget.String(),
		RolloverProgress: credit.RolloverProgress.String(),
		OverlayBalance:   credit.OverlayBalance.String(),
	}
}
