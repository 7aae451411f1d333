package handler

import (
	"net/http"

	"breakbread-ledger/internal/adapter/http/middleware"
	"breakbread-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService
	StepUpSvc      ports.StepUpService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	RateLimit      int64                // requests per minute per account
	OperatorToken  string
	Currency       string
	HealthCheckers []ports.HealthChecker
	Metrics        http.Handler // nil = /metrics not served
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	rules := middleware.DefaultRateLimitRules(deps.RateLimit)

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok || rule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- User routes (JWT) ---
	ledger := NewLedgerHandler(deps.LedgerSvc, deps.Currency)
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	{
		v1.POST("/transfers", rl("transfers"), ledger.Transfer)
		v1.GET("/transactions", rl("reads"), ledger.ListTransactions)
		v1.POST("/investments", rl("investments"), ledger.Invest)
		v1.GET("/positions", rl("reads"), ledger.Positions)
		v1.POST("/requests", rl("transfers"), ledger.RequestMoney)
		v1.GET("/requests", rl("reads"), ledger.ListMoneyRequests)
		v1.POST("/requests/:id/pay", rl("transfers"), ledger.PayMoneyRequest)
		v1.POST("/requests/:id/decline", rl("transfers"), ledger.DeclineMoneyRequest)
		v1.GET("/accounts/me/balance", rl("reads"), ledger.Balance)
		v1.GET("/accounts/me/diversification", rl("reads"), ledger.Diversification)
		v1.POST("/diversification/score", rl("reads"), ledger.Score)
		v1.GET("/assets", rl("reads"), ledger.ListAssets)
	}

	// --- Operator routes (static bearer) ---
	ops := NewOperatorHandler(deps.LedgerSvc, deps.TokenSvc, deps.StepUpSvc, deps.Currency)
	internal := r.Group("/internal", middleware.OperatorAuth(deps.OperatorToken), middleware.OperatorAudit(deps.Logger))
	{
		internal.POST("/accounts", ops.OpenAccount)
		internal.POST("/accounts/:id/deposits", ops.Deposit)
		internal.POST("/accounts/:id/tokens", ops.IssueAccessToken)
		internal.PUT("/assets/:key", ops.UpsertAsset)
		internal.POST("/revenue/allocate", ops.AllocateRevenue)
		internal.GET("/revenue", ops.Revenue)
		internal.GET("/security-events", ops.SecurityEvents)
		internal.POST("/step-up-tokens", ops.IssueStepUpToken)
	}

	return r
}
