package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyRequestStatus is the lifecycle state of a money request.
type MoneyRequestStatus string

const (
	MoneyRequestPending  MoneyRequestStatus = "pending"
	MoneyRequestPaid     MoneyRequestStatus = "paid"
	MoneyRequestDeclined MoneyRequestStatus = "declined"
)

var ErrMoneyRequestResolved = errors.New("money request already resolved")

// MoneyRequest asks PayerID to send Amount to RequesterID. Paying it moves
// the money without a fee; the payer has to approve.
type MoneyRequest struct {
	ID            uuid.UUID          `json:"id"`
	RequesterID   string             `json:"requester_id"`
	PayerID       string             `json:"payer_id"`
	Amount        decimal.Decimal    `json:"amount"`
	Note          string             `json:"note,omitempty"`
	Status        MoneyRequestStatus `json:"status"`
	TransactionID *uuid.UUID         `json:"transaction_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
}

// Resolve moves a pending request to paid or declined.
func (r *MoneyRequest) Resolve(status MoneyRequestStatus, txID *uuid.UUID, at time.Time) error {
	if r.Status != MoneyRequestPending {
		return ErrMoneyRequestResolved
	}
	switch status {
	case MoneyRequestPaid, MoneyRequestDeclined:
	default:
		return ErrInvalidTransition
	}
	r.Status = status
	r.TransactionID = txID
	r.ResolvedAt = &at
	return nil
}
