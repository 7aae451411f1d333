package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Upsert inserts a transaction or moves an existing row to its final status.
// Amounts are immutable once written.
func (r *TransactionRepo) Upsert(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, type, sender_id, recipient_id, amount, fee, note, status, reason, created_at, finalized_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			finalized_at = EXCLUDED.finalized_at`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Type, t.SenderID, t.RecipientID,
		t.Amount, t.Fee, t.Note, t.Status, t.Reason,
		t.CreatedAt, t.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert transaction: %w", err)
	}
	return nil
}

// List returns the whole log, oldest first.
func (r *TransactionRepo) List(ctx context.Context) ([]domain.Transaction, error) {
	query := `SELECT id, type, COALESCE(sender_id, ''), recipient_id, amount::text, fee::text,
		note, status, reason, created_at, finalized_at
		FROM transactions ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			t           domain.Transaction
			amount, fee string
		)
		err := rows.Scan(
			&t.ID, &t.Type, &t.SenderID, &t.RecipientID, &amount, &fee,
			&t.Note, &t.Status, &t.Reason, &t.CreatedAt, &t.FinalizedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if t.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if t.Fee, err = parseDecimal("fee", fee); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
