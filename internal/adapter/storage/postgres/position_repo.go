package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// PositionRepo implements ports.PositionRepository.
type PositionRepo struct {
	pool Pool
}

func NewPositionRepo(pool Pool) *PositionRepo {
	return &PositionRepo{pool: pool}
}

func (r *PositionRepo) Upsert(ctx context.Context, p *domain.Position) error {
	query := `INSERT INTO positions (account_id, asset_key, units, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, asset_key) DO UPDATE SET units = EXCLUDED.units,
			avg_cost = EXCLUDED.avg_cost,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, p.AccountID, p.AssetKey, p.Units, p.AvgCost, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Delete removes a closed position. Deleting a missing row is not an error.
func (r *PositionRepo) Delete(ctx context.Context, accountID, assetKey string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM positions WHERE account_id = $1 AND asset_key = $2`, accountID, assetKey)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (r *PositionRepo) List(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT account_id, asset_key, units::text, avg_cost::text, updated_at
		FROM positions ORDER BY account_id, asset_key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			p              domain.Position
			units, avgCost string
		)
		if err := rows.Scan(&p.AccountID, &p.AssetKey, &units, &avgCost, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		if p.Units, err = parseDecimal("units", units); err != nil {
			return nil, err
		}
		if p.AvgCost, err = parseDecimal("avg_cost", avgCost); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}
