package core

// EventType names a ledger change announced to downstream consumers.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	// EventLedgerPurged is emitted when every transaction of a user is
	// removed at once; it carries no transaction id.
	EventLedgerPurged EventType = "ledger.purged"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTransactionCreated, EventTransactionUpdated, EventTransactionDeleted, EventLedgerPurged:
		return true
	}
	return false
}
