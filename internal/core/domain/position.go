package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInsufficientUnits = errors.New("insufficient units")

// Position is an account's holding of one asset at average cost.
type Position struct {
	AccountID string          `json:"account_id"`
	AssetKey  string          `json:"asset_key"`
	Units     decimal.Decimal `json:"units"`
	AvgCost   decimal.Decimal `json:"avg_cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApplyBuy adds units bought at price and recomputes the weighted average cost.
func (p *Position) ApplyBuy(units, price decimal.Decimal) {
	total := p.Units.Add(units)
	if total.IsZero() {
		return
	}
	cost := p.Units.Mul(p.AvgCost).Add(units.Mul(price))
	p.AvgCost = cost.Div(total)
	p.Units = total
}

// ApplySell removes units. Average cost is left untouched.
func (p *Position) ApplySell(units decimal.Decimal) error {
	if units.GreaterThan(p.Units) {
		return ErrInsufficientUnits
	}
	p.Units = p.Units.Sub(units)
	return nil
}

// IsEmpty is true once every unit has been sold.
func (p *Position) IsEmpty() bool {
	return !p.Units.IsPositive()
}

// MarketValue values the position at price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Units.Mul(price)
}

// CostBasis is what the units cost at average cost.
func (p *Position) CostBasis() decimal.Decimal {
	return p.Units.Mul(p.AvgCost)
}

// UnrealizedPnL is market value at price minus cost basis.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price).Sub(p.CostBasis())
}
