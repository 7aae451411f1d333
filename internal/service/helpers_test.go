package service

import (
	"context"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainKey = "test-security-chain-key"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// decEqual compares decimals by value, ignoring exponent.
func decEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func testAssets() []domain.Asset {
	return []domain.Asset{
		{Key: "gold", Name: "Gold", Category: "precious_metals", UnitPrice: d("1925.00"), FeePercent: d("0.02")},
		{Key: "silver", Name: "Silver", Category: "precious_metals", UnitPrice: d("23.75"), FeePercent: d("0.02")},
		{Key: "treasury_bonds", Name: "Treasury Bonds", Category: "bonds", UnitPrice: d("1000.00"), FeePercent: d("0.01")},
		{Key: "acme", Name: "Acme Corp", Category: "stocks", UnitPrice: d("150.00"), FeePercent: d("0.02")},
	}
}

func testLedgerConfig() LedgerConfig {
	cfg := DefaultLedgerConfig()
	cfg.SecurityKey = testChainKey
	cfg.Assets = testAssets()
	return cfg
}

func newTestLedgerService(t *testing.T, cfg LedgerConfig, deps LedgerDeps) *LedgerServiceImpl {
	t.Helper()
	deps.Log = zerolog.Nop()
	return NewLedgerService(cfg, deps)
}

// setClock pins every component to one clock.
func (s *LedgerServiceImpl) setClock(now func() time.Time) {
	s.ledger.now = now
	s.security.now = now
	s.pool.now = now
	s.catalog.now = now
	s.transfers.now = now
	s.requests.now = now
}

// fakeClock is a manually advanced clock safe for concurrent readers
// as long as Advance is not called concurrently with them.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openAccount(t *testing.T, svc *LedgerServiceImpl, id, balance string) {
	t.Helper()
	_, err := svc.OpenAccount(context.Background(), ports.OpenAccountRequest{ID: id, InitialBalance: d(balance), Verified: true})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, svc *LedgerServiceImpl, id string) decimal.Decimal {
	t.Helper()
	b, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, expectedCode, apperror.CodeOf(err), "unexpected error: %v", err)
}
