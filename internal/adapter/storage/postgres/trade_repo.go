package postgres

import (
	"context"
	"fmt"

	"breakbread-ledger/internal/core/domain"
)

// TradeRepo implements ports.TradeRepository.
type TradeRepo struct {
	pool Pool
}

func NewTradeRepo(pool Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

func (r *TradeRepo) Create(ctx context.Context, t *domain.Trade) error {
	query := `INSERT INTO trades (id, account_id, asset_key, side, units, unit_price, cash, commission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.AccountID, t.AssetKey, t.Side,
		t.Units, t.UnitPrice, t.Cash, t.Commission, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListByAccount returns an account's most recent trades, newest first.
func (r *TradeRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, account_id, asset_key, side, units::text, unit_price::text, cash::text, commission::text, created_at
		FROM trades WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                              domain.Trade
			units, price, cash, commission string
		)
		err := rows.Scan(&t.ID, &t.AccountID, &t.AssetKey, &t.Side, &units, &price, &cash, &commission, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		if t.Units, err = parseDecimal("units", units); err != nil {
			return nil, err
		}
		if t.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
			return nil, err
		}
		if t.Cash, err = parseDecimal("cash", cash); err != nil {
			return nil, err
		}
		if t.Commission, err = parseDecimal("commission", commission); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}
