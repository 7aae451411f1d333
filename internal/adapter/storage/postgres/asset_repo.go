package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct {
	pool Pool
}

func NewAssetRepo(pool Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func (r *AssetRepo) Upsert(ctx context.Context, a *domain.Asset) error {
	query := `INSERT INTO assets (key, name, category, unit_price, fee_percent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name,
			category = EXCLUDED.category,
			unit_price = EXCLUDED.unit_price,
			fee_percent = EXCLUDED.fee_percent,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, a.Key, a.Name, a.Category, a.UnitPrice, a.FeePercent, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (r *AssetRepo) List(ctx context.Context) ([]domain.Asset, error) {
	query := `SELECT key, name, category, unit_price::text, fee_percent::text, updated_at
		FROM assets ORDER BY key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var (
			a          domain.Asset
			price, fee string
		)
		if err := rows.Scan(&a.Key, &a.Name, &a.Category, &price, &fee, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		if a.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
			return nil, err
		}
		if a.FeePercent, err = parseDecimal("fee_percent", fee); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset rows: %w", err)
	}
	return assets, nil
}
