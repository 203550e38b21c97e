package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event actions.
const (
	ActionAdded   = "added"
	ActionEdited  = "edited"
	ActionDeleted = "deleted"
)

// LedgerEventMessage notifies the reconciliation worker that a user's ledger
// changed. It carries only ids; the worker re-derives the balance from the
// database, so lost or duplicated deliveries are harmless.
type LedgerEventMessage struct {
	TransactionID int64     `json:"transaction_id"`
	UserID        int64     `json:"user_id"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEventMessage creates an event for a single ledger mutation.
func NewLedgerEventMessage(transactionID, userID int64, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		TransactionID: transactionID,
		UserID:        userID,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
