package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// MoneyRequestRepo implements ports.MoneyRequestRepository.
type MoneyRequestRepo struct {
	pool Pool
}

func NewMoneyRequestRepo(pool Pool) *MoneyRequestRepo {
	return &MoneyRequestRepo{pool: pool}
}

// Upsert writes a request; a conflicting row only takes the resolution.
func (r *MoneyRequestRepo) Upsert(ctx context.Context, mr *domain.MoneyRequest) error {
	query := `INSERT INTO money_requests (id, requester_id, payer_id, amount, note, status, transaction_id, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			transaction_id = EXCLUDED.transaction_id,
			resolved_at = EXCLUDED.resolved_at`

	_, err := r.pool.Exec(ctx, query,
		mr.ID, mr.RequesterID, mr.PayerID, mr.Amount, mr.Note,
		mr.Status, mr.TransactionID, mr.CreatedAt, mr.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert money request: %w", err)
	}
	return nil
}

func (r *MoneyRequestRepo) List(ctx context.Context) ([]domain.MoneyRequest, error) {
	query := `SELECT id, requester_id, payer_id, amount::text, note, status, transaction_id, created_at, resolved_at
		FROM money_requests ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list money requests: %w", err)
	}
	defer rows.Close()

	var out []domain.MoneyRequest
	for rows.Next() {
		var (
			mr     domain.MoneyRequest
			amount string
		)
		err := rows.Scan(
			&mr.ID, &mr.RequesterID, &mr.PayerID, &amount, &mr.Note,
			&mr.Status, &mr.TransactionID, &mr.CreatedAt, &mr.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan money request row: %w", err)
		}
		if mr.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate money request rows: %w", err)
	}
	return out, nil
}
