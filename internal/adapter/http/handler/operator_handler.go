package handler

import (
	"strconv"

	"breakbread-ledger/internal/adapter/http/dto"
	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/money"
	"breakbread-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultSecurityEventLimit = 100

// OperatorHandler serves /internal routes: account provisioning, asset
// prices, revenue and the security log.
type OperatorHandler struct {
	svc      ports.LedgerService
	tokens   ports.TokenService
	stepUp   ports.StepUpService
	currency string
}

func NewOperatorHandler(svc ports.LedgerService, tokens ports.TokenService, stepUp ports.StepUpService, currency string) *OperatorHandler {
	return &OperatorHandler{svc: svc, tokens: tokens, stepUp: stepUp, currency: currency}
}

// OpenAccount handles POST /internal/accounts. The response carries an
// access token for the new account.
func (h *OperatorHandler) OpenAccount(c *gin.Context) {
	var req dto.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	acc, err := h.svc.OpenAccount(c.Request.Context(), ports.OpenAccountRequest{
		ID:             req.ID,
		InitialBalance: dto.ParseDecimal(req.InitialBalance),
		Limit:          dto.ParseDecimal(req.Limit),
		Verified:       req.Verified,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.NewAccountResponse(acc)
	if h.tokens != nil {
		token, expiry, err := h.tokens.Generate(acc.ID)
		if err != nil {
			response.Error(c, apperror.InternalError(err))
			return
		}
		resp.AccessToken = token
		resp.TokenExpiry = expiry.Unix()
	}
	response.Created(c, resp)
}

// IssueAccessToken handles POST /internal/accounts/:id/tokens.
func (h *OperatorHandler) IssueAccessToken(c *gin.Context) {
	acc, err := h.svc.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiry, err := h.tokens.Generate(acc.ID)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	resp := dto.NewAccountResponse(acc)
	resp.AccessToken = token
	resp.TokenExpiry = expiry.Unix()
	response.Created(c, resp)
}

// Deposit handles POST /internal/accounts/:id/deposits.
func (h *OperatorHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	tx, err := h.svc.Deposit(c.Request.Context(), c.Param("id"), dto.ParseDecimal(req.Amount), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewTransactionResponse(tx, h.currency))
}

// UpsertAsset handles PUT /internal/assets/:key.
func (h *OperatorHandler) UpsertAsset(c *gin.Context) {
	var req dto.AssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	asset, err := h.svc.UpsertAsset(c.Request.Context(), domain.Asset{
		Key:        c.Param("key"),
		Name:       req.Name,
		Category:   req.Category,
		UnitPrice:  dto.ParseDecimal(req.UnitPrice),
		FeePercent: dto.ParseDecimal(req.FeePercent),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAssetResponse(*asset, h.currency))
}

// AllocateRevenue handles POST /internal/revenue/allocate. An empty pool
// yields a zero allocation, not an error.
func (h *OperatorHandler) AllocateRevenue(c *gin.Context) {
	alloc, err := h.svc.AllocateRevenue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAllocationResponse(alloc))
}

// Revenue handles GET /internal/revenue.
func (h *OperatorHandler) Revenue(c *gin.Context) {
	accrued := h.svc.RevenueAccrued(c.Request.Context())
	response.OK(c, dto.RevenueResponse{
		Accrued: money.String(accrued),
		Display: money.Format(accrued, h.currency),
	})
}

// SecurityEvents handles GET /internal/security-events.
func (h *OperatorHandler) SecurityEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSecurityEventLimit)))
	if err != nil || limit < 1 {
		limit = defaultSecurityEventLimit
	}

	view, err := h.svc.SecurityEvents(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSecurityLogResponse(view))
}

// IssueStepUpToken handles POST /internal/step-up-tokens.
func (h *OperatorHandler) IssueStepUpToken(c *gin.Context) {
	var req dto.StepUpTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	token, expiry, err := h.stepUp.Issue(c.Request.Context(), ports.StepUpChallenge{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Amount:      dto.ParseDecimal(req.Amount),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.StepUpTokenResponse{Token: token, ExpiresAt: expiry.Unix()})
}
