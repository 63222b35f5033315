package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/core"
)

// LedgerEvent announces a committed ledger change. It carries ids only;
// consumers read current state from the store.
type LedgerEvent struct {
	ID            string         `json:"id"`
	Type          core.EventType `json:"type"`
	UserID        int64          `json:"user_id"`
	TransactionID int64          `json:"transaction_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

func NewLedgerEvent(eventType core.EventType, userID, transactionID int64) *LedgerEvent {
	return &LedgerEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		UserID:        userID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("event %s has no user", msg.ID)
	}
	return &msg, nil
}
