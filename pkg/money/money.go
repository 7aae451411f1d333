// Package money holds the currency helpers shared by the ledger: fixed-point
// rounding for fees and commissions and display formatting for API payloads.
package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO code every balance in the ledger is held in.
const DefaultCurrency = gomoney.USD

// Cents is the number of decimal places kept on money amounts.
const Cents int32 = 2

// Round rounds a money amount to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Cents)
}

// Percent returns round(amount * rate, 2).
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// Format renders an amount with the currency's symbol and grouping, e.g. "$1,925.00".
func Format(d decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	// money.New never returns a nil currency, unknown codes get a generic formatter.
	cur := gomoney.New(0, currency).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// String is the plain two-decimal rendering used in JSON payloads.
func String(d decimal.Decimal) string {
	return d.StringFixed(Cents)
}
