package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"
	"breakbread-ledger/internal/core/ports"
	"breakbread-ledger/internal/core/ports/mocks"
	"breakbread-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func askFor(t *testing.T, svc *LedgerServiceImpl, requester, payer, amount string) *domain.MoneyRequest {
	t.Helper()
	mr, err := svc.RequestMoney(context.Background(), ports.MoneyRequestInput{
		RequesterID: requester, PayerID: payer, Amount: d(amount), Note: "dinner",
	})
	require.NoError(t, err)
	return mr
}

func payReq(payer string, id uuid.UUID) ports.PayMoneyRequestInput {
	return ports.PayMoneyRequestInput{PayerID: payer, RequestID: id}
}

func TestMoneyRequest_PayMovesMoneyWithoutFee(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000.00")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	mr := askFor(t, svc, "u2", "u1", "100.00")
	assert.Equal(t, domain.MoneyRequestPending, mr.Status)
	decEqual(t, "1000.00", balanceOf(t, svc, "u1"), "asking moves nothing")

	res, err := svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	require.NoError(t, err)
	require.NotNil(t, res.Transfer)

	tx := res.Transfer.Transaction
	assert.Equal(t, domain.TransactionTypeRequest, tx.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	decEqual(t, "0", tx.Fee)
	assert.Equal(t, "u1", tx.SenderID)
	assert.Equal(t, "u2", tx.RecipientID)

	assert.Equal(t, domain.MoneyRequestPaid, res.Request.Status)
	require.NotNil(t, res.Request.TransactionID)
	assert.Equal(t, tx.ID, *res.Request.TransactionID)
	require.NotNil(t, res.Request.ResolvedAt)

	decEqual(t, "900.00", balanceOf(t, svc, "u1"))
	decEqual(t, "100.00", balanceOf(t, svc, "u2"))
	decEqual(t, "0", svc.RevenueAccrued(ctx))

	_, err = svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	assertAppError(t, err, apperror.CodeRequestResolved)
	decEqual(t, "900.00", balanceOf(t, svc, "u1"))
}

func TestMoneyRequest_Validation(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "100")
	openAccount(t, svc, "u2", "0")

	tests := []struct {
		name string
		in   ports.MoneyRequestInput
		code string
	}{
		{"zero amount", ports.MoneyRequestInput{RequesterID: "u2", PayerID: "u1", Amount: d("0")}, apperror.CodeInvalidAmount},
		{"negative amount", ports.MoneyRequestInput{RequesterID: "u2", PayerID: "u1", Amount: d("-1")}, apperror.CodeInvalidAmount},
		{"self", ports.MoneyRequestInput{RequesterID: "u1", PayerID: "u1", Amount: d("1")}, apperror.CodeInvalidRecipient},
		{"unknown requester", ports.MoneyRequestInput{RequesterID: "ghost", PayerID: "u1", Amount: d("1")}, apperror.CodeNotFound},
		{"unknown payer", ports.MoneyRequestInput{RequesterID: "u2", PayerID: "ghost", Amount: d("1")}, apperror.CodeInvalidRecipient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RequestMoney(context.Background(), tc.in)
			assertAppError(t, err, tc.code)
		})
	}
}

func TestMoneyRequest_OnlyPayerCanResolve(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "100")
	openAccount(t, svc, "u2", "100")
	openAccount(t, svc, "u3", "100")
	ctx := context.Background()

	mr := askFor(t, svc, "u2", "u1", "10")

	_, err := svc.PayMoneyRequest(ctx, payReq("u3", mr.ID))
	assertAppError(t, err, apperror.CodeNotFound)
	_, err = svc.PayMoneyRequest(ctx, payReq("u2", mr.ID))
	assertAppError(t, err, apperror.CodeNotFound)
	_, err = svc.DeclineMoneyRequest(ctx, "u3", mr.ID)
	assertAppError(t, err, apperror.CodeNotFound)
	_, err = svc.PayMoneyRequest(ctx, payReq("u1", uuid.New()))
	assertAppError(t, err, apperror.CodeNotFound)

	decEqual(t, "100", balanceOf(t, svc, "u3"))
}

func TestMoneyRequest_Decline(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "100")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	mr := askFor(t, svc, "u2", "u1", "10")
	declined, err := svc.DeclineMoneyRequest(ctx, "u1", mr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MoneyRequestDeclined, declined.Status)
	assert.Nil(t, declined.TransactionID)
	require.NotNil(t, declined.ResolvedAt)

	_, err = svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	assertAppError(t, err, apperror.CodeRequestResolved)
	_, err = svc.DeclineMoneyRequest(ctx, "u1", mr.ID)
	assertAppError(t, err, apperror.CodeRequestResolved)

	decEqual(t, "100", balanceOf(t, svc, "u1"))
	decEqual(t, "0", balanceOf(t, svc, "u2"))
}

func TestMoneyRequest_FailedPaymentStaysPending(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "50")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	mr := askFor(t, svc, "u2", "u1", "100")

	res, err := svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	assertAppError(t, err, apperror.CodeInsufficientFunds)
	require.NotNil(t, res)
	assert.Equal(t, domain.MoneyRequestPending, res.Request.Status)

	_, err = svc.Deposit(ctx, "u1", d("50"), "top up")
	require.NoError(t, err)

	res, err = svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.MoneyRequestPaid, res.Request.Status)
	decEqual(t, "0", balanceOf(t, svc, "u1"))
	decEqual(t, "100", balanceOf(t, svc, "u2"))
}

func TestMoneyRequest_PayerStillScreened(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1500")
	openAccount(t, svc, "u2", "0")
	ctx := context.Background()

	mr := askFor(t, svc, "u2", "u1", "600")

	res, err := svc.PayMoneyRequest(ctx, payReq("u1", mr.ID))
	assertAppError(t, err, apperror.CodeStepUpRequired)
	require.NotNil(t, res)
	require.NotNil(t, res.Transfer)
	assert.Equal(t, domain.TransactionStatusFlagged, res.Transfer.Transaction.Status)
	assert.Equal(t, domain.ReasonNewRecipient, res.Transfer.Transaction.Reason)
	assert.Equal(t, domain.MoneyRequestPending, res.Request.Status)

	decEqual(t, "1500", balanceOf(t, svc, "u1"))
	view, err := svc.SecurityEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, view.Events, 1)
}

func TestMoneyRequest_ConcurrentPaysSettleOnce(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	openAccount(t, svc, "u1", "1000")
	openAccount(t, svc, "u2", "0")
	mr := askFor(t, svc, "u2", "u1", "100")

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paid  int
		codes []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PayMoneyRequest(context.Background(), payReq("u1", mr.ID))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				paid++
				return
			}
			codes = append(codes, apperror.CodeOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, paid)
	for _, code := range codes {
		assert.Contains(t, []string{apperror.CodeRequestResolved, apperror.CodeDuplicateTransaction}, code)
	}
	decEqual(t, "900", balanceOf(t, svc, "u1"))
	decEqual(t, "100", balanceOf(t, svc, "u2"))
}

func TestMoneyRequest_ListNewestFirst(t *testing.T) {
	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	clock := newFakeClock()
	svc.setClock(clock.Now)
	openAccount(t, svc, "u1", "100")
	openAccount(t, svc, "u2", "0")
	openAccount(t, svc, "u3", "0")
	ctx := context.Background()

	first := askFor(t, svc, "u2", "u1", "1")
	clock.Advance(time.Minute)
	second := askFor(t, svc, "u1", "u3", "2")
	clock.Advance(time.Minute)
	askFor(t, svc, "u2", "u3", "3")

	reqs, err := svc.ListMoneyRequests(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reqs, 2, "made and owed, not third-party requests")
	assert.Equal(t, second.ID, reqs[0].ID)
	assert.Equal(t, first.ID, reqs[1].ID)

	_, err = svc.ListMoneyRequests(ctx, "ghost")
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestMoneyRequest_RestoredRequestCanBePaid(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockMoneyRequestRepository(ctrl)

	pending := domain.MoneyRequest{
		ID: uuid.New(), RequesterID: "u2", PayerID: "u1", Amount: d("40"),
		Status: domain.MoneyRequestPending, CreatedAt: newFakeClock().Now(),
	}
	repo.EXPECT().List(gomock.Any()).Return([]domain.MoneyRequest{pending}, nil)

	svc := newTestLedgerService(t, testLedgerConfig(), LedgerDeps{})
	require.NoError(t, svc.Restore(context.Background(), &ports.Repositories{MoneyRequests: repo}))
	openAccount(t, svc, "u1", "100")
	openAccount(t, svc, "u2", "0")

	reqs, err := svc.ListMoneyRequests(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	res, err := svc.PayMoneyRequest(context.Background(), payReq("u1", pending.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.MoneyRequestPaid, res.Request.Status)
	decEqual(t, "40", balanceOf(t, svc, "u2"))
}
