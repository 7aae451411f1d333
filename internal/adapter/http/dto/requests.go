package dto

// TransferRequest is the body of POST /api/v1/transfers. The idempotency
// key travels in the Idempotency-Key header.
type TransferRequest struct {
	RecipientID string `json:"recipient_id" binding:"required,max=64,safe_id"`
	Amount      string `json:"amount" binding:"required,positive_decimal"`
	Note        string `json:"note" binding:"max=200"`
	StepUpToken string `json:"step_up_token,omitempty"`
}

// InvestRequest is a buy (amount is cash) or a sell (amount is units).
type InvestRequest struct {
	AssetKey string `json:"asset_key" binding:"required,max=64,safe_id"`
	Side     string `json:"side" binding:"required,oneof=buy sell"`
	Amount   string `json:"amount" binding:"required,positive_decimal"`
}

// ScoreRequest maps category to percentage, e.g. {"stocks": "40"}.
type ScoreRequest struct {
	Allocation map[string]string `json:"allocation" binding:"required"`
}

type OpenAccountRequest struct {
	ID             string `json:"id" binding:"required,max=64,safe_id"`
	InitialBalance string `json:"initial_balance" binding:"decimal"`
	Limit          string `json:"transaction_limit" binding:"decimal"`
	Verified       bool   `json:"verified"`
}

type DepositRequest struct {
	Amount string `json:"amount" binding:"required,positive_decimal"`
	Note   string `json:"note" binding:"max=200"`
}

// AssetRequest is the body of PUT /internal/assets/:key. Name and category
// may be omitted when updating an existing asset's price.
type AssetRequest struct {
	Name       string `json:"name" binding:"max=100"`
	Category   string `json:"category" binding:"max=64"`
	UnitPrice  string `json:"unit_price" binding:"required,positive_decimal"`
	FeePercent string `json:"fee_percent" binding:"decimal"`
}

type StepUpTokenRequest struct {
	SenderID    string `json:"sender_id" binding:"required,max=64,safe_id"`
	RecipientID string `json:"recipient_id" binding:"required,max=64,safe_id"`
	Amount      string `json:"amount" binding:"required,positive_decimal"`
}

// MoneyRequestCreate is the body of POST /api/v1/requests; the requester is
// the authenticated account.
type MoneyRequestCreate struct {
	PayerID string `json:"payer_id" binding:"required,max=64,safe_id"`
	Amount  string `json:"amount" binding:"required,positive_decimal"`
	Note    string `json:"note" binding:"max=200"`
}

type PayMoneyRequest struct {
	StepUpToken string `json:"step_up_token,omitempty"`
}
