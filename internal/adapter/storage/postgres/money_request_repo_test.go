package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moneyRequestColumns() []string {
	return []string{"id", "requester_id", "payer_id", "amount", "note",
		"status", "transaction_id", "created_at", "resolved_at"}
}

func newTestMoneyRequest() *domain.MoneyRequest {
	return &domain.MoneyRequest{
		ID:          uuid.New(),
		RequesterID: "u2",
		PayerID:     "u1",
		Amount:      decimal.RequireFromString("25.00"),
		Note:        "dinner",
		Status:      domain.MoneyRequestPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestMoneyRequestRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mr := newTestMoneyRequest()
	txID := uuid.New()
	require.NoError(t, mr.Resolve(domain.MoneyRequestPaid, &txID, mr.CreatedAt.Add(time.Minute)))

	mock.ExpectExec("INSERT INTO money_requests .+ ON CONFLICT \\(id\\) DO UPDATE SET status").
		WithArgs(
			mr.ID, mr.RequesterID, mr.PayerID, mr.Amount, mr.Note,
			mr.Status, mr.TransactionID, mr.CreatedAt, mr.ResolvedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, NewMoneyRequestRepo(mock).Upsert(context.Background(), mr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoneyRequestRepo_Upsert_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mr := newTestMoneyRequest()
	mock.ExpectExec("INSERT INTO money_requests").
		WithArgs(
			mr.ID, mr.RequesterID, mr.PayerID, mr.Amount, mr.Note,
			mr.Status, mr.TransactionID, mr.CreatedAt, mr.ResolvedAt,
		).
		WillReturnError(errors.New("connection reset"))

	err = NewMoneyRequestRepo(mock).Upsert(context.Background(), mr)
	assert.ErrorContains(t, err, "upsert money request")
}

func TestMoneyRequestRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	pending := newTestMoneyRequest()
	txID := uuid.New()
	resolvedAt := pending.CreatedAt.Add(time.Hour)
	paidID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM money_requests ORDER BY created_at").
		WillReturnRows(pgxmock.NewRows(moneyRequestColumns()).
			AddRow(pending.ID, "u2", "u1", "25.00", "dinner",
				domain.MoneyRequestPending, (*uuid.UUID)(nil), pending.CreatedAt, (*time.Time)(nil)).
			AddRow(paidID, "u3", "u1", "7.5", "",
				domain.MoneyRequestPaid, &txID, pending.CreatedAt, &resolvedAt))

	reqs, err := NewMoneyRequestRepo(mock).List(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, pending.ID, reqs[0].ID)
	assert.Equal(t, domain.MoneyRequestPending, reqs[0].Status)
	assert.Nil(t, reqs[0].TransactionID)
	assert.True(t, reqs[0].Amount.Equal(decimal.RequireFromString("25")))

	assert.Equal(t, paidID, reqs[1].ID)
	require.NotNil(t, reqs[1].TransactionID)
	assert.Equal(t, txID, *reqs[1].TransactionID)
	require.NotNil(t, reqs[1].ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoneyRequestRepo_List_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM money_requests").WillReturnError(errors.New("timeout"))

	_, err = NewMoneyRequestRepo(mock).List(context.Background())
	assert.ErrorContains(t, err, "list money requests")
}
