// Package worker consumes ledger events and keeps an audit trail of them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// BalanceReader recomputes a user's balance from the store.
type BalanceReader interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// UserLookup resolves the user an event refers to.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (core.User, error)
}

// Stats counts handled events.
type Stats struct {
	Processed   int64
	Failed      int64
	ByType      map[core.EventType]int64
	LastEventAt time.Time
}

// AuditWorker logs one audit line per ledger event together with the
// user's balance after the change.
type AuditWorker struct {
	ledger BalanceReader
	users  UserLookup
	logger *log.Logger

	mu    sync.Mutex
	stats Stats
}

func NewAuditWorker(ledger BalanceReader, users UserLookup, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &AuditWorker{
		ledger: ledger,
		users:  users,
		logger: logger.WithComponent(log.ComponentWorker),
		stats:  Stats{ByType: make(map[core.EventType]int64)},
	}
}

// HandleLedgerEvent is an amqp.Handler. Events for users that no longer
// exist are recorded and acknowledged; storage failures are returned so
// the message is requeued.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEvent) error {
	fields := log.NewFields().
		WithUser(msg.UserID).
		WithOperation(log.OpConsume)
	fields[log.FieldEventType] = string(msg.Type)
	fields["event_id"] = msg.ID
	fields["event_time"] = msg.Timestamp
	if msg.TransactionID > 0 {
		fields[log.FieldTransactionID] = msg.TransactionID
	}

	if msg.Type == core.EventLedgerPurged {
		w.logger.InfoContext(ctx, "Ledger purged", fields.ToSlice()...)
		w.record(msg, nil)
		return nil
	}

	if _, err := w.users.GetByID(ctx, msg.UserID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			w.logger.InfoContext(ctx, "Ledger event for a deleted user", fields.ToSlice()...)
			w.record(msg, nil)
			return nil
		}
		w.record(msg, err)
		return fmt.Errorf("look up user %d: %w", msg.UserID, err)
	}

	balance, err := w.ledger.Balance(ctx, msg.UserID)
	if err != nil {
		w.record(msg, err)
		return fmt.Errorf("recompute balance for user %d: %w", msg.UserID, err)
	}

	fields["balance"] = core.FormatAmount(balance)
	w.logger.InfoContext(ctx, "Ledger event audited", fields.ToSlice()...)
	w.record(msg, nil)
	return nil
}

func (w *AuditWorker) record(msg *amqp.LedgerEvent, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Failed++
		return
	}
	w.stats.Processed++
	w.stats.ByType[msg.Type]++
	if msg.Timestamp.After(w.stats.LastEventAt) {
		w.stats.LastEventAt = msg.Timestamp
	}
}

// Stats returns a copy of the counters.
func (w *AuditWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.stats
	out.ByType = make(map[core.EventType]int64, len(w.stats.ByType))
	for k, v := range w.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

// ReportStats logs the counters every interval until ctx is done.
func (w *AuditWorker) ReportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := w.Stats()
			w.logger.InfoContext(ctx, "Audit worker stats",
				"processed", s.Processed,
				"failed", s.Failed,
				"last_event_at", s.LastEventAt)
		}
	}
}
