package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakbread-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RevenueRepo implements ports.RevenueRepository. The pool balance lives
// in a single-row table.
type RevenueRepo struct {
	pool Pool
	now  func() time.Time
}

func NewRevenueRepo(pool Pool) *RevenueRepo {
	return &RevenueRepo{pool: pool, now: time.Now}
}

func (r *RevenueRepo) CreateAllocation(ctx context.Context, a *domain.Allocation) error {
	query := `INSERT INTO revenue_allocations (id, total, community, research, emergency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, a.ID, a.Total, a.Community, a.Research, a.Emergency, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert revenue allocation: %w", err)
	}
	return nil
}

func (r *RevenueRepo) SaveAccrued(ctx context.Context, accrued decimal.Decimal) error {
	query := `INSERT INTO revenue_pool (id, accrued, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET accrued = EXCLUDED.accrued, updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, accrued, r.now().UTC()); err != nil {
		return fmt.Errorf("save revenue pool: %w", err)
	}
	return nil
}

// LoadAccrued returns zero when the pool has never been saved.
func (r *RevenueRepo) LoadAccrued(ctx context.Context) (decimal.Decimal, error) {
	var accrued string
	err := r.pool.QueryRow(ctx, `SELECT accrued::text FROM revenue_pool WHERE id = 1`).Scan(&accrued)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("load revenue pool: %w", err)
	}
	return parseDecimal("accrued", accrued)
}
