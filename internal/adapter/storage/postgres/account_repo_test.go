package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAccountRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	acc := &domain.Account{
		ID:               "u1",
		Balance:          decimal.RequireFromString("898.50"),
		TransactionLimit: decimal.NewFromInt(1000),
		Verified:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	mock.ExpectExec("INSERT INTO accounts .+ ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs(acc.ID, acc.Balance, acc.TransactionLimit, acc.Verified, acc.CreatedAt, acc.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Upsert(context.Background(), acc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_Upsert_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("check constraint violated"))

	err = NewAccountRepo(mock).Upsert(context.Background(), &domain.Account{ID: "u1"})
	assert.ErrorContains(t, err, "upsert account")
}

func TestAccountRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	cols := []string{"id", "balance", "transaction_limit", "verified", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT .+ FROM accounts ORDER BY created_at").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("u1", "898.50", "1000.00", true, now, now).
			AddRow("u2", "100.00", "1000.00", false, now, now))

	accounts, err := NewAccountRepo(mock).List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "u1", accounts[0].ID)
	assert.True(t, accounts[0].Balance.Equal(decimal.RequireFromString("898.50")))
	assert.True(t, accounts[0].Verified)
	assert.False(t, accounts[1].Verified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_List_BadDecimal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM accounts").
		WillReturnRows(pgxmock.NewRows([]string{"id", "balance", "transaction_limit", "verified", "created_at", "updated_at"}).
			AddRow("u1", "abc", "1000", true, now, now))

	_, err = NewAccountRepo(mock).List(context.Background())
	assert.ErrorContains(t, err, "decode balance")
}
