package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's cash position in the ledger. Balance never goes
// negative; only the ledger mutates it.
type Account struct {
	ID               string          `json:"id"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionLimit decimal.Decimal `json:"transaction_limit"`
	Verified         bool            `json:"verified"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CanCover reports whether the balance covers amount.
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
