package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/core/ports/mocks"
	"breakbread-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func transferReq(from, to, amount string) ports.TransferRequest {
	return ports.TransferRequest{SenderID: from, RecipientID: to, Amount: d(amount)}
}

func TestTransfer_CompletesWithFee(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000.00")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	res, err := svc.Transfer(ctx, transferReq("u1", "u2", "100.00"))
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)

	tx := res.Transaction
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, domain.TransactionTypeTransfer, tx.Type)
	decEqual(t, "1.50", tx.Fee)
	assert.True(t, res.Verdict.IsAllowed())

	decEqual(t, "898.50", balanceOf(t, svc, "u1"))
	decEqual(t, "100.00", balanceOf(t, svc, "u2"))
	decEqual(t, "1.50", svc.RevenueAccrued(ctx))

	history, err := svc.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2, "transfer plus opening deposit")
	assert.Equal(t, tx.ID, history[0].ID)
}

func TestTransfer_Validation(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	tests := []struct {
		name string
		req  ports.TransferRequest
		code string
	}{
		{"zero amount", transferReq("u1", "u2", "0"), apperror.CodeInvalidAmount},
		{"negative amount", transferReq("u1", "u2", "-5"), apperror.CodeInvalidAmount},
		{"self transfer", transferReq("u1", "u1", "5"), apperror.CodeInvalidRecipient},
		{"unknown recipient", transferReq("u1", "ghost", "5"), apperror.CodeInvalidRecipient},
		{"unknown sender", transferReq("ghost", "u2", "5"), apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Transfer(context.Background(), tt.req)
			assertAppError(t, err, tt.code)
			assert.Nil(t, res, "no record for rejected input")
		})
	}

	txs, _ := svc.ListTransactions(context.Background(), "u1")
	assert.Len(t, txs, 1)
	decEqual(t, "1000", balanceOf(t, svc, "u1"))
}

func TestTransfer_StepUpRequiredForNewRecipient(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1500.00")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	res, err := svc.Transfer(ctx, transferReq("u1", "u2", "600.00"))
	assertAppError(t, err, apperror.CodeStepUpRequired)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, domain.ReasonNewRecipient, appErr.Reason)

	require.NotNil(t, res)
	assert.Equal(t, domain.TransactionStatusFlagged, res.Transaction.Status)
	assert.Equal(t, domain.ReasonNewRecipient, res.Transaction.Reason)
	assert.Equal(t, domain.DecisionStepUpRequired, res.Verdict.Decision)

	decEqual(t, "1500.00", balanceOf(t, svc, "u1"))
	decEqual(t, "0", balanceOf(t, svc, "u2"))
	decEqual(t, "0", svc.RevenueAccrued(ctx))

	view, err := svc.SecurityEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, view.Events, 1)
	assert.Equal(t, domain.ReasonNewRecipient, view.Events[0].Reason)
	require.NotNil(t, view.Events[0].TransactionID)
	assert.Equal(t, res.Transaction.ID, *view.Events[0].TransactionID)
	assert.True(t, view.ChainValid)
}

func TestTransfer_KnownRecipientSkipsStepUp(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "2000")
	openAccount(t, svc, "u2", "0")

	_, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "10"))
	require.NoError(t, err)

	res, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "600"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, res.Transaction.Status)
}

func newStepUpLedger(t *testing.T, nonces ports.NonceStore) (*LedgerServiceImpl, *StepUpService) {
	t.Helper()
	stepUp := NewStepUpService(testStepUpSecret, 5*time.Minute, "issuer", nonces, zerolog.Nop())
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{StepUp: stepUp})
	openAccount(t, svc, "u1", "1500.00")
	openAccount(t, svc, "u2", "0")
	return svc, stepUp
}

func TestTransfer_StepUpTokenCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	nonces := mocks.NewMockNonceStore(ctrl)
	nonces.EXPECT().CheckAndSet(gomock.Any(), stepUpNonceScope, gomock.Any(), gomock.Any()).Return(true, nil)
	svc, stepUp := newStepUpLedger(t, nonces)
	ctx := context.Background()

	token, _, err := stepUp.Issue(ctx, challenge("600.00"))
	require.NoError(t, err)

	req := transferReq("u1", "u2", "600.00")
	req.StepUpToken = token
	res, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, res.Transaction.Status)
	decEqual(t, "9.00", res.Transaction.Fee)

	decEqual(t, "891.00", balanceOf(t, svc, "u1"))
	decEqual(t, "600.00", balanceOf(t, svc, "u2"))
	decEqual(t, "9.00", svc.RevenueAccrued(ctx))

	view, _ := svc.SecurityEvents(ctx, 0)
	require.Len(t, view.Events, 1, "the step-up verdict is still audited")
	assert.Contains(t, view.Events[0].Detail, "confirmed=true")
}

func TestTransfer_StepUpTokenForOtherAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, stepUp := newStepUpLedger(t, mocks.NewMockNonceStore(ctrl))
	ctx := context.Background()

	token, _, err := stepUp.Issue(ctx, challenge("100.00"))
	require.NoError(t, err)

	req := transferReq("u1", "u2", "600.00")
	req.StepUpToken = token
	res, err := svc.Transfer(ctx, req)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeStepUpRequired, appErr.Code)
	assert.Equal(t, domain.ReasonStepUpInvalid, appErr.Reason)
	assert.Equal(t, domain.TransactionStatusFlagged, res.Transaction.Status)
	assert.Equal(t, domain.ReasonStepUpInvalid, res.Transaction.Reason)
	decEqual(t, "1500.00", balanceOf(t, svc, "u1"))
}

func TestTransfer_StepUpNonceStoreDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	nonces := mocks.NewMockNonceStore(ctrl)
	nonces.EXPECT().CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("connection refused"))
	svc, stepUp := newStepUpLedger(t, nonces)

	token, _, err := stepUp.Issue(context.Background(), challenge("600.00"))
	require.NoError(t, err)

	req := transferReq("u1", "u2", "600.00")
	req.StepUpToken = token
	res, err := svc.Transfer(context.Background(), req)
	assertAppError(t, err, apperror.CodeInternal)
	assert.Nil(t, res)

	txs, _ := svc.ListTransactions(context.Background(), "u1")
	assert.Len(t, txs, 1, "nothing recorded beyond the opening deposit")
}

func TestTransfer_OverLimit(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "5000")
	openAccount(t, svc, "u2", "0")

	res, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "1000.01"))
	assertAppError(t, err, apperror.CodeOverTransactionLimit)
	assert.Equal(t, domain.TransactionStatusFlagged, res.Transaction.Status)
	assert.Equal(t, domain.ReasonOverLimit, res.Transaction.Reason)
	decEqual(t, "5000", balanceOf(t, svc, "u1"))

	view, _ := svc.SecurityEvents(context.Background(), 0)
	require.Len(t, view.Events, 1)
	assert.Equal(t, domain.DecisionBlocked, view.Events[0].Decision)
}

func TestTransfer_AccountLimitOverridesDefault(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	_, err := svc.OpenAccount(context.Background(), ports.OpenAccountRequest{ID: "whale", InitialBalance: d("10000"), Limit: d("5000")})
	require.NoError(t, err)
	openAccount(t, svc, "u2", "0")
	_, err = svc.Transfer(context.Background(), transferReq("whale", "u2", "10"))
	require.NoError(t, err)

	res, err := svc.Transfer(context.Background(), transferReq("whale", "u2", "2500"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, res.Transaction.Status)
}

func TestTransfer_Velocity(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	clock := newFakeClock()
	svc.setClock(clock.Now)
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.Transfer(ctx, transferReq("u1", "u2", "1"))
		require.NoError(t, err, "transfer %d", i)
		clock.Advance(time.Minute)
	}

	res, err := svc.Transfer(ctx, transferReq("u1", "u2", "1"))
	assertAppError(t, err, apperror.CodeFraudBlocked)
	assert.Equal(t, domain.ReasonHighFrequency, res.Transaction.Reason)

	// Flagged attempts still count, so the window must fully pass.
	clock.Advance(24 * time.Hour)
	res, err = svc.Transfer(ctx, transferReq("u1", "u2", "1"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, res.Transaction.Status)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "50.00")
	openAccount(t, svc, "u2", "0")

	res, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "50.00"))
	assertAppError(t, err, apperror.CodeInsufficientFunds)
	require.NotNil(t, res)
	assert.Equal(t, domain.TransactionStatusFailed, res.Transaction.Status)
	assert.Equal(t, "insufficient_funds", res.Transaction.Reason)
	assert.True(t, res.Verdict.IsAllowed())

	decEqual(t, "50.00", balanceOf(t, svc, "u1"))
	decEqual(t, "0", balanceOf(t, svc, "u2"))
	decEqual(t, "0", svc.RevenueAccrued(context.Background()))

	view, _ := svc.SecurityEvents(context.Background(), 0)
	assert.Empty(t, view.Events, "allowed verdicts are not audited")
}

func TestTransfer_Idempotency(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{Idempotency: cache})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	var stored []byte
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), "transfer:u1:k-1").Return(nil, nil),
		cache.EXPECT().Claim(gomock.Any(), "transfer:u1:k-1", 30*time.Second).Return(true, nil),
		cache.EXPECT().Set(gomock.Any(), "transfer:u1:k-1", gomock.Any(), 24*time.Hour).
			DoAndReturn(func(_ context.Context, _ string, value []byte, _ time.Duration) error {
				stored = value
				return nil
			}),
		cache.EXPECT().Release(gomock.Any(), "transfer:u1:k-1").Return(nil),
		cache.EXPECT().Get(gomock.Any(), "transfer:u1:k-1").
			DoAndReturn(func(context.Context, string) ([]byte, error) { return stored, nil }),
	)

	req := transferReq("u1", "u2", "100")
	req.IdempotencyKey = "k-1"

	first, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	decEqual(t, "898.50", balanceOf(t, svc, "u1"), "replay does not move money twice")
}

// slowIdempotencyCache is an in-memory cache whose reads lag, widening the
// window between lookup and write.
type slowIdempotencyCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	claims  map[string]bool
	delay   time.Duration
}

func newSlowIdempotencyCache(delay time.Duration) *slowIdempotencyCache {
	return &slowIdempotencyCache{entries: map[string][]byte{}, claims: map[string]bool{}, delay: delay}
}

func (c *slowIdempotencyCache) Get(_ context.Context, key string) ([]byte, error) {
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *slowIdempotencyCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *slowIdempotencyCache) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *slowIdempotencyCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}

func TestTransfer_ConcurrentDuplicatesExecuteOnce(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{Idempotency: newSlowIdempotencyCache(5 * time.Millisecond)})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	const duplicates = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		executed  int
		replayed  int
		conflicts int
	)
	for i := 0; i < duplicates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := transferReq("u1", "u2", "100")
			req.IdempotencyKey = "k-dup"
			res, err := svc.Transfer(context.Background(), req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case apperror.Is(err, apperror.CodeDuplicateTransaction):
				conflicts++
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case res.Replayed:
				replayed++
			default:
				executed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, executed)
	assert.Equal(t, duplicates-1, replayed+conflicts)
	decEqual(t, "898.50", balanceOf(t, svc, "u1"))
	decEqual(t, "100", balanceOf(t, svc, "u2"))
}

func TestTransfer_ClaimReleasedAfterFlag(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{Idempotency: newSlowIdempotencyCache(0)})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	req := transferReq("u1", "u2", "600")
	req.IdempotencyKey = "k-flag"
	_, err := svc.Transfer(context.Background(), req)
	assertAppError(t, err, apperror.CodeStepUpRequired)

	// the same key may be retried once the first attempt is finished
	_, err = svc.Transfer(context.Background(), req)
	assertAppError(t, err, apperror.CodeStepUpRequired)
}

func TestTransfer_IdempotencyCacheErrorFallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	cache.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("timeout"))
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("timeout"))

	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{Idempotency: cache})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	req := transferReq("u1", "u2", "100")
	req.IdempotencyKey = "k-2"
	res, err := svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, res.Transaction.Status)
}

func TestTransfer_FailedResultIsNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	cache.EXPECT().Claim(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	cache.EXPECT().Release(gomock.Any(), "transfer:u1:k-3").Return(nil)

	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{Idempotency: cache})
	openAccount(t, svc, "u1", "10")
	openAccount(t, svc, "u2", "0")

	req := transferReq("u1", "u2", "100")
	req.IdempotencyKey = "k-3"
	_, err := svc.Transfer(context.Background(), req)
	assertAppError(t, err, apperror.CodeInsufficientFunds)
}

func TestTransfer_ConcurrentVelocityIsLinearized(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	const attempts = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		blocked   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil && res.Transaction.Status == domain.TransactionStatusCompleted {
				completed++
			} else if apperror.CodeOf(err) == apperror.CodeFraudBlocked {
				blocked++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, completed)
	assert.Equal(t, attempts-10, blocked)
	decEqual(t, "989.80", balanceOf(t, svc, "u1"), "fee of 0.015 rounds to 0.02")
	decEqual(t, "10", balanceOf(t, svc, "u2"))
}

func TestTransfer_ConservationAcrossMixedOutcomes(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		openAccount(t, svc, id, "800")
	}
	ctx := context.Background()

	amounts := []string{"10", "700", "1200", "250.55", "999.99", "3"}
	var wg sync.WaitGroup
	for i, from := range ids {
		for j, to := range ids {
			if from == to {
				continue
			}
			wg.Add(1)
			go func(from, to, amount string) {
				defer wg.Done()
				_, _ = svc.Transfer(ctx, transferReq(from, to, amount))
			}(from, to, amounts[(i+j)%len(amounts)])
		}
	}
	wg.Wait()

	total := svc.ledger.TotalBalance()
	decEqual(t, "3200", total.Add(svc.RevenueAccrued(ctx)), "balances plus fees equal deposits")
	for _, id := range ids {
		assert.False(t, balanceOf(t, svc, id).IsNegative())
	}
}

func TestTransfer_FinalizeFailureLeavesNoSecurityEvent(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")

	// A rule that finalizes the candidate itself makes the processor's own
	// Finalize fail after the verdict is known.
	txlog := svc.transfers.txlog
	svc.transfers.fraud.rules = append([]FraudRule{{
		Name: "finalize_early",
		Detect: func(c FraudCheck) (domain.Verdict, bool) {
			_, _ = txlog.Finalize(c.CandidateID, domain.TransactionStatusFailed, "test", c.Now)
			return domain.Verdict{Decision: domain.DecisionBlocked, Reason: domain.ReasonHighFrequency}, true
		},
	}}, svc.transfers.fraud.rules...)

	_, err := svc.Transfer(context.Background(), transferReq("u1", "u2", "10"))
	assertAppError(t, err, apperror.CodeInternal)

	view, err := svc.SecurityEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, view.Events, "rolled back units must not leave signed events")
	decEqual(t, "1000", balanceOf(t, svc, "u1"))
}
