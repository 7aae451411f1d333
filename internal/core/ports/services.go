package ports

import (
	"context"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenService handles user access tokens.
type TokenService interface {
	Generate(accountID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID string
}

// StepUpChallenge binds a step-up confirmation to one transfer.
type StepUpChallenge struct {
	SenderID    string
	RecipientID string
	Amount      decimal.Decimal
}

// StepUpService issues and redeems single-use step-up tokens.
type StepUpService interface {
	Issue(ctx context.Context, challenge StepUpChallenge) (string, time.Time, error)
	Verify(ctx context.Context, token string, challenge StepUpChallenge) error
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Claim reserves key for one in-flight request; false means another
	// request holds it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NonceStore manages single-use identifiers (step-up token ids).
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimitStore is a fixed-window request counter.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// EventPublisher ships ledger events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
	Close() error
}

// PriceSource resolves the unit price of an asset from an already
// fetched snapshot. Implementations must not block on the network.
type PriceSource interface {
	UnitPrice(ctx context.Context, assetKey string) (decimal.Decimal, error)
}

// --- Service Ports (Business Logic) ---

// TransferRequest holds validated input for a peer-to-peer transfer.
type TransferRequest struct {
	SenderID       string
	RecipientID    string
	Amount         decimal.Decimal
	Note           string
	StepUpToken    string
	IdempotencyKey string
}

// TransferResult carries the transaction record, present whenever one was
// created, even when the transfer was rejected.
type TransferResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Verdict     domain.Verdict      `json:"verdict"`
	Replayed    bool                `json:"replayed,omitempty"`
}

// InvestRequest is a buy (Amount is cash) or a sell (Amount is units).
type InvestRequest struct {
	AccountID string
	AssetKey  string
	Side      domain.TradeSide
	Amount    decimal.Decimal
}

// InvestResult describes an executed trade. Position is nil when a sell
// closed it.
type InvestResult struct {
	Trade      domain.Trade     `json:"trade"`
	NewBalance decimal.Decimal  `json:"new_balance"`
	Position   *domain.Position `json:"position,omitempty"`
}

// OpenAccountRequest creates a ledger account. A zero Limit uses the default.
type OpenAccountRequest struct {
	ID             string
	InitialBalance decimal.Decimal
	Limit          decimal.Decimal
	Verified       bool
}

// PortfolioScore is a diversification score over an account's holdings.
type PortfolioScore struct {
	Score      int                        `json:"score"`
	Allocation map[string]decimal.Decimal `json:"allocation"`
}

// SecurityLogView is the audit chain plus its integrity status.
type SecurityLogView struct {
	Events     []domain.SecurityEvent `json:"events"`
	ChainValid bool                   `json:"chain_valid"`
}

// MoneyRequestInput asks PayerID to pay RequesterID.
type MoneyRequestInput struct {
	RequesterID string
	PayerID     string
	Amount      decimal.Decimal
	Note        string
}

// PayMoneyRequestInput is the payer's approval of a pending request.
type PayMoneyRequestInput struct {
	PayerID     string
	RequestID   uuid.UUID
	StepUpToken string
}

// MoneyRequestResult is a request after a payment attempt. Transfer is set
// whenever a transaction record was created.
type MoneyRequestResult struct {
	Request  domain.MoneyRequest `json:"request"`
	Transfer *TransferResult     `json:"transfer,omitempty"`
}

// PositionValuation is one holding valued at the catalog price.
type PositionValuation struct {
	Position      domain.Position `json:"position"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioValuation totals an account's holdings.
type PortfolioValuation struct {
	Positions     []PositionValuation `json:"positions"`
	MarketValue   decimal.Decimal     `json:"market_value"`
	CostBasis     decimal.Decimal     `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
}

// LedgerService is the facade the HTTP layer talks to.
type LedgerService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Invest(ctx context.Context, req InvestRequest) (*InvestResult, error)
	AllocateRevenue(ctx context.Context) (domain.Allocation, error)
	DiversificationScore(allocation map[string]decimal.Decimal) int

	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetPositions(ctx context.Context, accountID string) ([]domain.Position, error)
	PortfolioValuation(ctx context.Context, accountID string) (*PortfolioValuation, error)
	ListTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error)

	OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, note string) (*domain.Transaction, error)
	ListAssets(ctx context.Context) []domain.Asset
	UpsertAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error)
	RevenueAccrued(ctx context.Context) decimal.Decimal
	PortfolioScore(ctx context.Context, accountID string) (*PortfolioScore, error)
	SecurityEvents(ctx context.Context, limit int) (*SecurityLogView, error)

	RequestMoney(ctx context.Context, in MoneyRequestInput) (*domain.MoneyRequest, error)
	ListMoneyRequests(ctx context.Context, accountID string) ([]domain.MoneyRequest, error)
	PayMoneyRequest(ctx context.Context, in PayMoneyRequestInput) (*MoneyRequestResult, error)
	DeclineMoneyRequest(ctx context.Context, payerID string, requestID uuid.UUID) (*domain.MoneyRequest, error)
}
