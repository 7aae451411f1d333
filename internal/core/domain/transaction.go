package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeDeposit  TransactionType = "deposit"
	// TransactionTypeRequest is a fee-free payment of a money request.
	TransactionTypeRequest TransactionType = "request"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFlagged   TransactionStatus = "flagged"
	TransactionStatusFailed    TransactionStatus = "failed"
)

var (
	ErrTransactionFinalized = errors.New("transaction already finalized")
	ErrInvalidTransition    = errors.New("invalid transaction status transition")
)

// Transaction is an append-only ledger record. It is created pending and
// finalized exactly once.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	Type        TransactionType   `json:"type"`
	SenderID    string            `json:"sender_id,omitempty"`
	RecipientID string            `json:"recipient_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Note        string            `json:"note,omitempty"`
	Status      TransactionStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	FinalizedAt *time.Time        `json:"finalized_at,omitempty"`
}

// NewTransfer builds a pending transfer record.
func NewTransfer(senderID, recipientID string, amount, fee decimal.Decimal, note string, now time.Time) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		Type:        TransactionTypeTransfer,
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Fee:         fee,
		Note:        note,
		Status:      TransactionStatusPending,
		CreatedAt:   now,
	}
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFlagged ||
		t.Status == TransactionStatusFailed
}

// Finalize moves a pending transaction to a terminal status.
func (t *Transaction) Finalize(status TransactionStatus, reason string, at time.Time) error {
	if t.Status != TransactionStatusPending {
		return ErrTransactionFinalized
	}
	switch status {
	case TransactionStatusCompleted, TransactionStatusFlagged, TransactionStatusFailed:
	default:
		return ErrInvalidTransition
	}
	t.Status = status
	t.Reason = reason
	t.FinalizedAt = &at
	return nil
}

// IsPeerTransfer is true for money moved between two accounts, whether sent
// directly or paid against a request.
func (t *Transaction) IsPeerTransfer() bool {
	return t.Type == TransactionTypeTransfer || t.Type == TransactionTypeRequest
}

// Involves reports whether accountID is the sender or the recipient.
func (t *Transaction) Involves(accountID string) bool {
	return t.SenderID == accountID || t.RecipientID == accountID
}
