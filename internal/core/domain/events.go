package domain

import "time"

// EventType names a ledger event published to downstream consumers.
type EventType string

const (
	EventAccountOpened        EventType = "account.opened"
	EventTransactionFinalized EventType = "transaction.finalized"
	EventTradeExecuted        EventType = "trade.executed"
	EventRevenueAllocated     EventType = "revenue.allocated"
	EventSecurityFlagged      EventType = "security.flagged"
	EventMoneyRequestUpdated  EventType = "money_request.updated"
)

// Event is the envelope published on the events bus. Key is used for
// partitioning (the account id where one applies).
type Event struct {
	Type       EventType   `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}
