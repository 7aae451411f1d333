package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	userToken     = "user-token"
	operatorToken = "op-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	ledger *mocks.MockLedgerService
	tokens *mocks.MockTokenService
	stepUp *mocks.MockStepUpService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		ledger: mocks.NewMockLedgerService(ctrl),
		tokens: mocks.NewMockTokenService(ctrl),
		stepUp: mocks.NewMockStepUpService(ctrl),
	}
	env.tokens.EXPECT().Validate(userToken).Return(&ports.TokenClaims{AccountID: "u1"}, nil).AnyTimes()

	env.router = SetupRouter(RouterDeps{
		LedgerSvc:     env.ledger,
		TokenSvc:      env.tokens,
		StepUpSvc:     env.stepUp,
		OperatorToken: operatorToken,
		Currency:      "USD",
		Logger:        zerolog.Nop(),
	})
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doWithHeader(method, path, token string, body interface{}, key, value string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(key, value)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decodeData returns the "data" member of a success envelope.
func decodeData(t *testing.T, w *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["data"]
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
