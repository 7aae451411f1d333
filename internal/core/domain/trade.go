package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Valid reports whether s is a known side.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Trade is the immutable record of an executed buy or sell.
// Cash is what was paid (buy) or received gross (sell), before commission.
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  string          `json:"account_id"`
	AssetKey   string          `json:"asset_key"`
	Side       TradeSide       `json:"side"`
	Units      decimal.Decimal `json:"units"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Cash       decimal.Decimal `json:"cash"`
	Commission decimal.Decimal `json:"commission"`
	CreatedAt  time.Time       `json:"created_at"`
}
