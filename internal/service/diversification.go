package service

import (
	"breakbread-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TargetAllocation is the ideal portfolio in percent per category.
var TargetAllocation = map[string]decimal.Decimal{
	"stocks":          decimal.NewFromInt(40),
	"bonds":           decimal.NewFromInt(20),
	"crypto":          decimal.NewFromInt(10),
	"precious_metals": decimal.NewFromInt(10),
	"startups":        decimal.NewFromInt(10),
	"royalties":       decimal.NewFromInt(5),
	"real_estate":     decimal.NewFromInt(5),
}

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.RequireFromString("0.5")
)

// Score is 100 minus half the absolute distance to TargetAllocation, clamped
// to [0, 100] and rounded half to even. Categories outside the target are
// ignored.
func Score(actual map[string]decimal.Decimal) int {
	penalty := decimal.Zero
	for category, target := range TargetAllocation {
		penalty = penalty.Add(target.Sub(actual[category]).Abs())
	}
	score := hundred.Sub(penalty.Mul(half))
	if score.IsNegative() {
		score = decimal.Zero
	}
	if score.GreaterThan(hundred) {
		score = hundred
	}
	return int(score.RoundBank(0).IntPart())
}

// AllocationFromPositions converts holdings into percent of market value
// per category, valued at catalog prices. Positions in assets missing from
// the catalog are skipped.
func AllocationFromPositions(positions []domain.Position, assets map[string]domain.Asset) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, p := range positions {
		asset, ok := assets[p.AssetKey]
		if !ok {
			continue
		}
		category := asset.Category
		if category == "" {
			category = "other"
		}
		v := p.MarketValue(asset.UnitPrice)
		values[category] = values[category].Add(v)
		total = total.Add(v)
	}

	out := make(map[string]decimal.Decimal, len(values))
	if !total.IsPositive() {
		return out
	}
	for category, v := range values {
		out[category] = v.Mul(hundred).Div(total).Round(2)
	}
	return out
}
