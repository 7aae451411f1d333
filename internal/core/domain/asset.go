package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tradeable instrument. FeePercent is a fraction (0.02 = 2%).
type Asset struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
