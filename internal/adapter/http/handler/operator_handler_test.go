package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/core/ports/mocks"
	"breakbread-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOperatorRoutes_RequireOperatorToken(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/internal/revenue", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/internal/revenue", userToken, nil).Code)
}

func TestOpenAccount_IssuesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	expiry := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	var got ports.OpenAccountRequest
	env.ledger.EXPECT().OpenAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.OpenAccountRequest) (*domain.Account, error) {
			got = req
			return &domain.Account{ID: "u9", Balance: d("250"), TransactionLimit: d("500"), Verified: true}, nil
		})
	env.tokens.EXPECT().Generate("u9").Return("jwt-u9", expiry, nil)

	w := env.do(http.MethodPost, "/internal/accounts", operatorToken, map[string]interface{}{
		"id": "u9", "initial_balance": "250", "verified": true,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, d("250").Equal(got.InitialBalance))
	assert.True(t, got.Limit.IsZero())
	assert.True(t, got.Verified)

	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "jwt-u9", data["access_token"])
	assert.EqualValues(t, expiry.Unix(), data["token_expiry"])
	assert.Equal(t, "250.00", data["balance"])
}

func TestOpenAccount_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().OpenAccount(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrDuplicateAccount())

	w := env.do(http.MethodPost, "/internal/accounts", operatorToken, map[string]string{"id": "u1"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PAY_006", decodeError(t, w)["error_code"])
}

func TestIssueAccessToken_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().GetAccount(gomock.Any(), "ghost").Return(nil, apperror.ErrNotFound("account"))

	w := env.do(http.MethodPost, "/internal/accounts/ghost/tokens", operatorToken, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().GetAccount(gomock.Any(), "u2").Return(&domain.Account{ID: "u2", Balance: d("10")}, nil)
	env.tokens.EXPECT().Generate("u2").Return("jwt-u2", time.Now().Add(time.Hour), nil)

	w := env.do(http.MethodPost, "/internal/accounts/u2/tokens", operatorToken, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "jwt-u2", decodeData(t, w).(map[string]interface{})["access_token"])
}

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	tx := &domain.Transaction{
		ID: uuid.New(), Type: domain.TransactionTypeDeposit, RecipientID: "u1",
		Amount: d("50"), Fee: d("0"), Status: domain.TransactionStatusCompleted, CreatedAt: now, FinalizedAt: &now,
	}
	env.ledger.EXPECT().Deposit(gomock.Any(), "u1", gomock.Any(), "payroll").
		DoAndReturn(func(_ context.Context, _ string, amount decimal.Decimal, _ string) (*domain.Transaction, error) {
			assert.Equal(t, "50.25", amount.String())
			return tx, nil
		})

	w := env.do(http.MethodPost, "/internal/accounts/u1/deposits", operatorToken, map[string]string{
		"amount": "50.25", "note": "payroll",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "deposit", data["type"])
	assert.NotContains(t, data, "sender_id")
}

func TestUpsertAsset(t *testing.T) {
	env := newTestEnv(t)

	var got domain.Asset
	env.ledger.EXPECT().UpsertAsset(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a domain.Asset) (*domain.Asset, error) {
			got = a
			a.Name = "Gold"
			a.Category = "precious_metals"
			return &a, nil
		})

	w := env.do(http.MethodPut, "/internal/assets/gold", operatorToken, map[string]string{
		"unit_price": "1950.00", "fee_percent": "0.02",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gold", got.Key)
	assert.True(t, d("1950").Equal(got.UnitPrice))
	assert.True(t, d("0.02").Equal(got.FeePercent))
	assert.Equal(t, "Gold", decodeData(t, w).(map[string]interface{})["name"])
}

func TestUpsertAsset_ServiceValidation(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().UpsertAsset(gomock.Any(), gomock.Any()).Return(nil, apperror.Validation("fee_percent must be in [0, 1)"))

	w := env.do(http.MethodPut, "/internal/assets/gold", operatorToken, map[string]string{
		"unit_price": "1950", "fee_percent": "1.5",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAllocateRevenue(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().AllocateRevenue(gomock.Any()).Return(domain.Allocation{
		ID: uuid.New(), Total: d("7.50"), Community: d("3.00"), Research: d("2.625"), Emergency: d("1.875"),
	}, nil)

	w := env.do(http.MethodPost, "/internal/revenue/allocate", operatorToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "7.50", data["total"])
	assert.Equal(t, "3.00", data["community"])
	assert.NotEmpty(t, data["id"])
}

func TestAllocateRevenue_EmptyPool(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().AllocateRevenue(gomock.Any()).Return(domain.Allocation{}, nil)

	w := env.do(http.MethodPost, "/internal/revenue/allocate", operatorToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "0.00", data["total"])
	assert.NotContains(t, data, "id")
}

func TestRevenue(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().RevenueAccrued(gomock.Any()).Return(d("1234.5"))

	w := env.do(http.MethodGet, "/internal/revenue", operatorToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "1234.50", data["accrued"])
	assert.Equal(t, "$1,234.50", data["display"])
}

func TestSecurityEvents(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.EXPECT().SecurityEvents(gomock.Any(), 5).Return(&ports.SecurityLogView{
		ChainValid: true,
		Events: []domain.SecurityEvent{{
			ID: "01HQ0000000000000000000000", AccountID: "u1",
			Decision: domain.DecisionBlocked, Reason: domain.ReasonHighFrequency,
		}},
	}, nil)
	env.ledger.EXPECT().SecurityEvents(gomock.Any(), defaultSecurityEventLimit).Return(&ports.SecurityLogView{}, nil)

	w := env.do(http.MethodGet, "/internal/security-events?limit=5", operatorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, true, data["chain_valid"])
	assert.Len(t, data["events"].([]interface{}), 1)

	w = env.do(http.MethodGet, "/internal/security-events?limit=-3", operatorToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIssueStepUpToken(t *testing.T) {
	env := newTestEnv(t)
	expiry := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)

	var got ports.StepUpChallenge
	env.stepUp.EXPECT().Issue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ch ports.StepUpChallenge) (string, time.Time, error) {
			got = ch
			return "stepup-jwt", expiry, nil
		})

	w := env.do(http.MethodPost, "/internal/step-up-tokens", operatorToken, map[string]string{
		"sender_id": "u1", "recipient_id": "u2", "amount": "600",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "u1", got.SenderID)
	assert.True(t, d("600").Equal(got.Amount))
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "stepup-jwt", data["token"])
	assert.EqualValues(t, expiry.Unix(), data["expires_at"])
}

func TestHealthCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgres").AnyTimes()
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Name().Return("redis").AnyTimes()
	rd.EXPECT().Ping(gomock.Any()).Return(assert.AnError)

	router := SetupRouter(RouterDeps{
		HealthCheckers: []ports.HealthChecker{pg, rd},
		Logger:         zerolog.Nop(),
	})
	env := &testEnv{router: router}

	w := env.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "healthy", deps["postgres"].(map[string]interface{})["status"])
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
}

func TestHealthCheck_NoDependencies(t *testing.T) {
	env := &testEnv{router: SetupRouter(RouterDeps{Logger: zerolog.Nop()})}

	w := env.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeError(t, w)["status"])
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ledger_transfers_total 0\n"))
	})
	env := &testEnv{router: SetupRouter(RouterDeps{Metrics: metrics, Logger: zerolog.Nop()})}

	w := env.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledger_transfers_total")
}
