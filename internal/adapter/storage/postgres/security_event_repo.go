package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// SecurityEventRepo implements ports.SecurityEventRepository. Rows are
// append-only; the signature chain is verified by the service on restore.
type SecurityEventRepo struct {
	pool Pool
}

func NewSecurityEventRepo(pool Pool) *SecurityEventRepo {
	return &SecurityEventRepo{pool: pool}
}

func (r *SecurityEventRepo) Create(ctx context.Context, e *domain.SecurityEvent) error {
	query := `INSERT INTO security_events (id, transaction_id, account_id, decision, reason, detail, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TransactionID, e.AccountID, e.Decision, e.Reason, e.Detail, e.Signature, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// List returns the chain in signing order. ULIDs sort by creation time.
func (r *SecurityEventRepo) List(ctx context.Context) ([]domain.SecurityEvent, error) {
	query := `SELECT id, transaction_id, account_id, decision, reason, detail, signature, created_at
		FROM security_events ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var e domain.SecurityEvent
		err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Decision, &e.Reason, &e.Detail, &e.Signature, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan security event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security event rows: %w", err)
	}
	return events, nil
}
