package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/storage/memory"
)

type failingBalance struct{}

func (failingBalance) Balance(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, core.NewStorageError("list transactions", errors.New("disk on fire"))
}

func TestHandleLedgerEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user, err := store.InsertUser(ctx, core.User{Email: "ada@example.com", FullName: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	svc := ledger.NewService(store)
	created, err := svc.AddTransaction(ctx, core.NewTransaction{
		UserID: user.ID, IsExpense: true, Amount: decimal.RequireFromString("9.50"),
		Description: "Lunch", Category: core.Food, Date: core.NewDate(2025, 6, 15),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := NewAuditWorker(svc, store, log.New(log.Config{Output: io.Discard}))

	events := []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(core.EventTransactionCreated, user.ID, created.ID),
		amqp.NewLedgerEvent(core.EventTransactionDeleted, 404, 1),
		amqp.NewLedgerEvent(core.EventLedgerPurged, user.ID, 0),
	}
	for _, ev := range events {
		if err := w.HandleLedgerEvent(ctx, ev); err != nil {
			t.Fatalf("%s: %v", ev.Type, err)
		}
	}

	stats := w.Stats()
	if stats.Processed != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ByType[core.EventTransactionCreated] != 1 || stats.ByType[core.EventLedgerPurged] != 1 {
		t.Fatalf("by type = %v", stats.ByType)
	}
	if stats.LastEventAt.IsZero() {
		t.Fatal("LastEventAt not recorded")
	}
}

func TestHandleLedgerEventRequeuesStorageFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user, _ := store.InsertUser(ctx, core.User{Email: "ada@example.com", FullName: "Ada"})
	w := NewAuditWorker(failingBalance{}, store, log.New(log.Config{Output: io.Discard}))

	err := w.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(core.EventTransactionUpdated, user.ID, 1))
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected a storage error to requeue, got %v", err)
	}
	if s := w.Stats(); s.Failed != 1 || s.Processed != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestStatsReturnsCopy(t *testing.T) {
	w := NewAuditWorker(failingBalance{}, memory.New(), log.New(log.Config{Output: io.Discard}))
	_ = w.HandleLedgerEvent(context.Background(), &amqp.LedgerEvent{Type: core.EventLedgerPurged, UserID: 1, Timestamp: time.Now()})

	s := w.Stats()
	s.ByType[core.EventLedgerPurged] = 99
	if w.Stats().ByType[core.EventLedgerPurged] != 1 {
		t.Fatal("Stats must not expose internal state")
	}
}
