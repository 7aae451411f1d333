package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SecurityEvent is an append-only audit record for a non-allowed fraud
// verdict. Signature chains over the previous event's signature.
type SecurityEvent struct {
	ID            string     `json:"id"` // ULID, sorts by creation time
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	AccountID     string     `json:"account_id"`
	Decision      Decision   `json:"decision"`
	Reason        string     `json:"reason"`
	Detail        string     `json:"detail,omitempty"`
	Signature     string     `json:"signature"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CanonicalPayload is the byte string covered by the signature.
func (e *SecurityEvent) CanonicalPayload() string {
	txID := ""
	if e.TransactionID != nil {
		txID = e.TransactionID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		e.ID, txID, e.AccountID, e.Decision, e.Reason, e.Detail, e.CreatedAt.UnixNano())
}
