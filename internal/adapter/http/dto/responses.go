package dto

import (
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/money"

	"github.com/shopspring/decimal"
)

// Money fields are plain decimal strings; *_display carries the formatted
// currency string for UIs.

type TransactionResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	SenderID      string  `json:"sender_id,omitempty"`
	RecipientID   string  `json:"recipient_id"`
	Amount        string  `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
	Fee           string  `json:"fee"`
	Note          string  `json:"note,omitempty"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	FinalizedAt   *string `json:"finalized_at,omitempty"`
}

type TransferResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Decision    string              `json:"decision"`
	Reason      string              `json:"reason,omitempty"`
	Replayed    bool                `json:"replayed,omitempty"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Display   string `json:"display"`
	Currency  string `json:"currency"`
}

type AccountResponse struct {
	ID               string `json:"id"`
	Balance          string `json:"balance"`
	TransactionLimit string `json:"transaction_limit"`
	Verified         bool   `json:"verified"`
	CreatedAt        string `json:"created_at"`
	AccessToken      string `json:"access_token,omitempty"`
	TokenExpiry      int64  `json:"token_expiry,omitempty"`
}

type TradeResponse struct {
	ID         string `json:"id"`
	AssetKey   string `json:"asset_key"`
	Side       string `json:"side"`
	Units      string `json:"units"`
	UnitPrice  string `json:"unit_price"`
	Cash       string `json:"cash"`
	Commission string `json:"commission"`
	CreatedAt  string `json:"created_at"`
}

// PositionResponse carries valuation fields only on GET /api/v1/positions.
type PositionResponse struct {
	AssetKey      string `json:"asset_key"`
	Units         string `json:"units"`
	AvgCost       string `json:"avg_cost"`
	UnitPrice     string `json:"unit_price,omitempty"`
	MarketValue   string `json:"market_value,omitempty"`
	CostBasis     string `json:"cost_basis,omitempty"`
	UnrealizedPnL string `json:"unrealized_pnl,omitempty"`
}

type PortfolioResponse struct {
	Positions     []PositionResponse `json:"positions"`
	MarketValue   string             `json:"market_value"`
	CostBasis     string             `json:"cost_basis"`
	UnrealizedPnL string             `json:"unrealized_pnl"`
}

type MoneyRequestResponse struct {
	ID            string  `json:"id"`
	RequesterID   string  `json:"requester_id"`
	PayerID       string  `json:"payer_id"`
	Amount        string  `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
	Note          string  `json:"note,omitempty"`
	Status        string  `json:"status"`
	TransactionID string  `json:"transaction_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
	ResolvedAt    *string `json:"resolved_at,omitempty"`
}

// MoneyRequestPaymentResponse is the result of paying a request.
type MoneyRequestPaymentResponse struct {
	Request  MoneyRequestResponse `json:"request"`
	Transfer *TransferResponse    `json:"transfer,omitempty"`
}

type InvestResponse struct {
	Trade      TradeResponse     `json:"trade"`
	NewBalance string            `json:"new_balance"`
	Display    string            `json:"new_balance_display"`
	Position   *PositionResponse `json:"position,omitempty"`
}

type AssetResponse struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	UnitPrice    string `json:"unit_price"`
	PriceDisplay string `json:"unit_price_display"`
	FeePercent   string `json:"fee_percent"`
}

type ScoreResponse struct {
	Score      int               `json:"score"`
	Allocation map[string]string `json:"allocation,omitempty"`
}

type AllocationResponse struct {
	ID        string `json:"id,omitempty"`
	Total     string `json:"total"`
	Community string `json:"community"`
	Research  string `json:"research"`
	Emergency string `json:"emergency"`
}

type RevenueResponse struct {
	Accrued string `json:"accrued"`
	Display string `json:"display"`
}

type SecurityEventResponse struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id,omitempty"`
	AccountID     string `json:"account_id"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason"`
	Detail        string `json:"detail,omitempty"`
	Signature     string `json:"signature"`
	CreatedAt     string `json:"created_at"`
}

type SecurityLogResponse struct {
	Events     []SecurityEventResponse `json:"events"`
	ChainValid bool                    `json:"chain_valid"`
}

type StepUpTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // Unix timestamp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func NewTransactionResponse(tx *domain.Transaction, currency string) TransactionResponse {
	resp := TransactionResponse{
		ID:            tx.ID.String(),
		Type:          string(tx.Type),
		SenderID:      tx.SenderID,
		RecipientID:   tx.RecipientID,
		Amount:        money.String(tx.Amount),
		AmountDisplay: money.Format(tx.Amount, currency),
		Fee:           money.String(tx.Fee),
		Note:          tx.Note,
		Status:        string(tx.Status),
		Reason:        tx.Reason,
		CreatedAt:     formatTime(tx.CreatedAt),
	}
	if tx.FinalizedAt != nil {
		s := formatTime(*tx.FinalizedAt)
		resp.FinalizedAt = &s
	}
	return resp
}

func NewTransferResponse(result *ports.TransferResult, currency string) TransferResponse {
	return TransferResponse{
		Transaction: NewTransactionResponse(result.Transaction, currency),
		Decision:    string(result.Verdict.Decision),
		Reason:      result.Verdict.Reason,
		Replayed:    result.Replayed,
	}
}

func NewBalanceResponse(accountID string, balance decimal.Decimal, currency string) BalanceResponse {
	return BalanceResponse{
		AccountID: accountID,
		Balance:   money.String(balance),
		Display:   money.Format(balance, currency),
		Currency:  currency,
	}
}

func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Balance:          money.String(a.Balance),
		TransactionLimit: money.String(a.TransactionLimit),
		Verified:         a.Verified,
		CreatedAt:        formatTime(a.CreatedAt),
	}
}

func NewTradeResponse(t domain.Trade) TradeResponse {
	return TradeResponse{
		ID:         t.ID.String(),
		AssetKey:   t.AssetKey,
		Side:       string(t.Side),
		Units:      t.Units.String(),
		UnitPrice:  money.String(t.UnitPrice),
		Cash:       money.String(t.Cash),
		Commission: money.String(t.Commission),
		CreatedAt:  formatTime(t.CreatedAt),
	}
}

func NewPositionResponse(p domain.Position) PositionResponse {
	return PositionResponse{
		AssetKey: p.AssetKey,
		Units:    p.Units.String(),
		AvgCost:  money.String(p.AvgCost),
	}
}

func NewPortfolioResponse(v *ports.PortfolioValuation) PortfolioResponse {
	resp := PortfolioResponse{
		Positions:     make([]PositionResponse, 0, len(v.Positions)),
		MarketValue:   money.String(v.MarketValue),
		CostBasis:     money.String(v.CostBasis),
		UnrealizedPnL: money.String(v.UnrealizedPnL),
	}
	for _, pv := range v.Positions {
		item := NewPositionResponse(pv.Position)
		item.UnitPrice = money.String(pv.UnitPrice)
		item.MarketValue = money.String(pv.MarketValue)
		item.CostBasis = money.String(pv.CostBasis)
		item.UnrealizedPnL = money.String(pv.UnrealizedPnL)
		resp.Positions = append(resp.Positions, item)
	}
	return resp
}

func NewMoneyRequestResponse(r *domain.MoneyRequest, currency string) MoneyRequestResponse {
	resp := MoneyRequestResponse{
		ID:            r.ID.String(),
		RequesterID:   r.RequesterID,
		PayerID:       r.PayerID,
		Amount:        money.String(r.Amount),
		AmountDisplay: money.Format(r.Amount, currency),
		Note:          r.Note,
		Status:        string(r.Status),
		CreatedAt:     formatTime(r.CreatedAt),
	}
	if r.TransactionID != nil {
		resp.TransactionID = r.TransactionID.String()
	}
	if r.ResolvedAt != nil {
		s := formatTime(*r.ResolvedAt)
		resp.ResolvedAt = &s
	}
	return resp
}

func NewMoneyRequestPaymentResponse(r *ports.MoneyRequestResult, currency string) MoneyRequestPaymentResponse {
	resp := MoneyRequestPaymentResponse{Request: NewMoneyRequestResponse(&r.Request, currency)}
	if r.Transfer != nil && r.Transfer.Transaction != nil {
		tr := NewTransferResponse(r.Transfer, currency)
		resp.Transfer = &tr
	}
	return resp
}

func NewInvestResponse(r *ports.InvestResult, currency string) InvestResponse {
	resp := InvestResponse{
		Trade:      NewTradeResponse(r.Trade),
		NewBalance: money.String(r.NewBalance),
		Display:    money.Format(r.NewBalance, currency),
	}
	if r.Position != nil {
		p := NewPositionResponse(*r.Position)
		resp.Position = &p
	}
	return resp
}

func NewAssetResponse(a domain.Asset, currency string) AssetResponse {
	return AssetResponse{
		Key:          a.Key,
		Name:         a.Name,
		Category:     a.Category,
		UnitPrice:    money.String(a.UnitPrice),
		PriceDisplay: money.Format(a.UnitPrice, currency),
		FeePercent:   a.FeePercent.String(),
	}
}

func NewScoreResponse(score int, allocation map[string]decimal.Decimal) ScoreResponse {
	resp := ScoreResponse{Score: score}
	if len(allocation) > 0 {
		resp.Allocation = make(map[string]string, len(allocation))
		for k, v := range allocation {
			resp.Allocation[k] = v.StringFixed(2)
		}
	}
	return resp
}

func NewAllocationResponse(a domain.Allocation) AllocationResponse {
	resp := AllocationResponse{
		Total:     money.String(a.Total),
		Community: money.String(a.Community),
		Research:  money.String(a.Research),
		Emergency: money.String(a.Emergency),
	}
	if !a.IsZero() {
		resp.ID = a.ID.String()
	}
	return resp
}

func NewSecurityLogResponse(view *ports.SecurityLogView) SecurityLogResponse {
	resp := SecurityLogResponse{
		Events:     make([]SecurityEventResponse, 0, len(view.Events)),
		ChainValid: view.ChainValid,
	}
	for _, e := range view.Events {
		item := SecurityEventResponse{
			ID:        e.ID,
			AccountID: e.AccountID,
			Decision:  string(e.Decision),
			Reason:    e.Reason,
			Detail:    e.Detail,
			Signature: e.Signature,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if e.TransactionID != nil {
			item.TransactionID = e.TransactionID.String()
		}
		resp.Events = append(resp.Events, item)
	}
	return resp
}
