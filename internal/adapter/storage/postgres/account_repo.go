package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Upsert writes the latest snapshot of an account.
func (r *AccountRepo) Upsert(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, balance, transaction_limit, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance,
			transaction_limit = EXCLUDED.transaction_limit,
			verified = EXCLUDED.verified,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Balance, a.TransactionLimit, a.Verified, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// List returns every account ordered by creation.
func (r *AccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT id, balance::text, transaction_limit::text, verified, created_at, updated_at
		FROM accounts ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			a              domain.Account
			balance, limit string
		)
		if err := rows.Scan(&a.ID, &balance, &limit, &a.Verified, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		if a.Balance, err = parseDecimal("balance", balance); err != nil {
			return nil, err
		}
		if a.TransactionLimit, err = parseDecimal("transaction_limit", limit); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}
