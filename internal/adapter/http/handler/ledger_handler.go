package handler

import (
	"strconv"

	"breakbread-ledger/internal/adapter/http/dto"
	"breakbread-ledger/internal/adapter/http/middleware"
	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"
	"breakbread-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// LedgerHandler serves the user-facing /api/v1 routes. Every route acts on
// the account from the access token.
type LedgerHandler struct {
	svc      ports.LedgerService
	currency string
}

func NewLedgerHandler(svc ports.LedgerService, currency string) *LedgerHandler {
	return &LedgerHandler{svc: svc, currency: currency}
}

func accountFromContext(c *gin.Context) (string, bool) {
	id := middleware.AccountID(c)
	if id == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return "", false
	}
	return id, true
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Transfer handles POST /api/v1/transfers.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	senderID, ok := accountFromContext(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.svc.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		Amount:         dto.ParseDecimal(req.Amount),
		Note:           req.Note,
		StepUpToken:    req.StepUpToken,
		IdempotencyKey: c.GetHeader(middleware.HeaderIdempotencyKey),
	})
	if err != nil {
		txID := ""
		if result != nil && result.Transaction != nil {
			txID = result.Transaction.ID.String()
		}
		response.ErrorWithTransaction(c, err, txID)
		return
	}

	if result.Replayed {
		response.OK(c, dto.NewTransferResponse(result, h.currency))
		return
	}
	response.Created(c, dto.NewTransferResponse(result, h.currency))
}

// ListTransactions handles GET /api/v1/transactions, newest first.
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	txs, err := h.svc.ListTransactions(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit := listLimit(c); len(txs) > limit {
		txs = txs[:limit]
	}

	items := make([]dto.TransactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, dto.NewTransactionResponse(&txs[i], h.currency))
	}
	response.OK(c, items)
}

// Invest handles POST /api/v1/investments.
func (h *LedgerHandler) Invest(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	var req dto.InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.svc.Invest(c.Request.Context(), ports.InvestRequest{
		AccountID: accountID,
		AssetKey:  req.AssetKey,
		Side:      domain.TradeSide(req.Side),
		Amount:    dto.ParseDecimal(req.Amount),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewInvestResponse(result, h.currency))
}

// Positions handles GET /api/v1/positions, valuing each holding at the
// current catalog price.
func (h *LedgerHandler) Positions(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	valuation, err := h.svc.PortfolioValuation(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPortfolioResponse(valuation))
}

// Balance handles GET /api/v1/accounts/me/balance.
func (h *LedgerHandler) Balance(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(accountID, balance, h.currency))
}

// Diversification handles GET /api/v1/accounts/me/diversification.
func (h *LedgerHandler) Diversification(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	score, err := h.svc.PortfolioScore(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewScoreResponse(score.Score, score.Allocation))
}

// Score handles POST /api/v1/diversification/score for an arbitrary allocation.
func (h *LedgerHandler) Score(c *gin.Context) {
	var req dto.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	allocation := make(map[string]decimal.Decimal, len(req.Allocation))
	for category, raw := range req.Allocation {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			response.Error(c, apperror.Validation("allocation."+category+": not a decimal"))
			return
		}
		allocation[category] = pct
	}

	response.OK(c, dto.NewScoreResponse(h.svc.DiversificationScore(allocation), nil))
}

// ListAssets handles GET /api/v1/assets.
func (h *LedgerHandler) ListAssets(c *gin.Context) {
	assets := h.svc.ListAssets(c.Request.Context())
	items := make([]dto.AssetResponse, 0, len(assets))
	for _, a := range assets {
		items = append(items, dto.NewAssetResponse(a, h.currency))
	}
	response.OK(c, items)
}

// RequestMoney handles POST /api/v1/requests.
func (h *LedgerHandler) RequestMoney(c *gin.Context) {
	requesterID, ok := accountFromContext(c)
	if !ok {
		return
	}

	var req dto.MoneyRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	mr, err := h.svc.RequestMoney(c.Request.Context(), ports.MoneyRequestInput{
		RequesterID: requesterID,
		PayerID:     req.PayerID,
		Amount:      dto.ParseDecimal(req.Amount),
		Note:        req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewMoneyRequestResponse(mr, h.currency))
}

// ListMoneyRequests handles GET /api/v1/requests: requests the account made
// or was asked to pay, newest first.
func (h *LedgerHandler) ListMoneyRequests(c *gin.Context) {
	accountID, ok := accountFromContext(c)
	if !ok {
		return
	}

	reqs, err := h.svc.ListMoneyRequests(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if limit := listLimit(c); len(reqs) > limit {
		reqs = reqs[:limit]
	}

	items := make([]dto.MoneyRequestResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewMoneyRequestResponse(&reqs[i], h.currency))
	}
	response.OK(c, items)
}

func requestIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("money request"))
		return uuid.Nil, false
	}
	return id, true
}

// PayMoneyRequest handles POST /api/v1/requests/:id/pay.
func (h *LedgerHandler) PayMoneyRequest(c *gin.Context) {
	payerID, ok := accountFromContext(c)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(c)
	if !ok {
		return
	}

	var req dto.PayMoneyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}

	result, err := h.svc.PayMoneyRequest(c.Request.Context(), ports.PayMoneyRequestInput{
		PayerID:     payerID,
		RequestID:   requestID,
		StepUpToken: req.StepUpToken,
	})
	if err != nil {
		txID := ""
		if result != nil && result.Transfer != nil && result.Transfer.Transaction != nil {
			txID = result.Transfer.Transaction.ID.String()
		}
		response.ErrorWithTransaction(c, err, txID)
		return
	}
	response.OK(c, dto.NewMoneyRequestPaymentResponse(result, h.currency))
}

// DeclineMoneyRequest handles POST /api/v1/requests/:id/decline.
func (h *LedgerHandler) DeclineMoneyRequest(c *gin.Context) {
	payerID, ok := accountFromContext(c)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(c)
	if !ok {
		return
	}

	mr, err := h.svc.DeclineMoneyRequest(c.Request.Context(), payerID, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMoneyRequestResponse(mr, h.currency))
}
