package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation is the three-way split produced when the revenue pool is drained.
type Allocation struct {
	ID        uuid.UUID       `json:"id"`
	Total     decimal.Decimal `json:"total"`
	Community decimal.Decimal `json:"community"`
	Research  decimal.Decimal `json:"research"`
	Emergency decimal.Decimal `json:"emergency"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsZero is true for the no-op result of allocating an empty pool.
func (a Allocation) IsZero() bool {
	return a.Total.IsZero()
}
