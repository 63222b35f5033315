package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/storage/memory"
)

type recordedEvent struct {
	eventType    core.EventType
	userID, txID int64
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, eventType core.EventType, userID, txID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType, userID, txID})
	return p.err
}

func (p *fakePublisher) types() []core.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.eventType
	}
	return out
}

var refDay = time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC) // a Sunday

func newTestService(t *testing.T, opts ...Option) (*Service, int64) {
	t.Helper()
	store := memory.New()
	u, err := store.InsertUser(context.Background(), core.User{Email: "a@b.com", FullName: "Ada"})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return refDay })}, opts...)
	return NewService(store, opts...), u.ID
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expense(userID int64, amt string, c core.Category, date time.Time) core.NewTransaction {
	return core.NewTransaction{UserID: userID, IsExpense: true, Amount: amount(amt), Description: "spent " + amt, Category: c, Date: date}
}

func income(userID int64, amt string, date time.Time) core.NewTransaction {
	return core.NewTransaction{UserID: userID, Amount: amount(amt), Description: "earned " + amt, Category: core.Income, Date: date}
}

func mustAdd(t *testing.T, s *Service, in core.NewTransaction) core.Transaction {
	t.Helper()
	tx, err := s.AddTransaction(context.Background(), in)
	if err != nil {
		t.Fatalf("AddTransaction(%+v): %v", in, err)
	}
	return tx
}

func TestAddTransactionValidation(t *testing.T) {
	s, uid := newTestService(t)

	tests := []struct {
		name string
		in   core.NewTransaction
		want error
	}{
		{"zero amount", expense(uid, "0", core.Food, refDay), core.ErrInvalidAmount},
		{"negative amount", expense(uid, "-3", core.Food, refDay), core.ErrInvalidAmount},
		{"blank description", core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("1"), Description: "   ", Category: core.Food}, core.ErrInvalidDescription},
		{"long description", core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("1"), Description: strings.Repeat("x", 201), Category: core.Food}, core.ErrInvalidDescription},
		{"expense tagged income", core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("1"), Description: "x", Category: core.Income}, core.ErrCategoryMismatch},
		{"income tagged food", core.NewTransaction{UserID: uid, Amount: amount("1"), Description: "x", Category: core.Food}, core.ErrCategoryMismatch},
		{"no category", core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("1"), Description: "x"}, core.ErrUnknownCategory},
		{"no user", expense(0, "1", core.Food, refDay), core.ErrInvalidUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddTransaction(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	txs, _ := s.ListForUser(context.Background(), uid)
	if len(txs) != 0 {
		t.Fatalf("rejected input was stored: %+v", txs)
	}
}

func TestAddTransactionDefaultsDateAndTrims(t *testing.T) {
	s, uid := newTestService(t)
	tx := mustAdd(t, s, core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("4"), Description: "  coffee  ", Category: core.Food})

	if !tx.Date.Equal(refDay) {
		t.Errorf("Date = %v, want now %v", tx.Date, refDay)
	}
	if tx.Description != "coffee" {
		t.Errorf("Description = %q", tx.Description)
	}
}

func TestBalanceScenario(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()

	mustAdd(t, s, core.NewTransaction{UserID: uid, IsExpense: true, Amount: amount("45.99"), Description: "Grocery shopping", Category: core.Food, Date: refDay})
	mustAdd(t, s, core.NewTransaction{UserID: uid, Amount: amount("1250.00"), Description: "Salary", Category: core.Income, Date: refDay.AddDate(0, 0, -3)})

	got, err := s.Balance(ctx, uid)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !got.Equal(amount("1204.01")) {
		t.Fatalf("Balance = %s, want 1204.01", got)
	}
}

func TestBalanceIsAdditive(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()

	before, _ := s.Balance(ctx, uid)
	steps := []struct {
		in    core.NewTransaction
		delta string
	}{
		{expense(uid, "10.10", core.Food, refDay), "-10.10"},
		{income(uid, "100", refDay), "100"},
		{expense(uid, "0.01", core.Health, refDay), "-0.01"},
	}
	for _, step := range steps {
		mustAdd(t, s, step.in)
		after, err := s.Balance(ctx, uid)
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if !after.Sub(before).Equal(amount(step.delta)) {
			t.Fatalf("balance moved by %s, want %s", after.Sub(before), step.delta)
		}
		before = after
	}
}

func TestUpdateTransaction(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()
	tx := mustAdd(t, s, expense(uid, "10", core.Food, refDay))

	tx.Amount = amount("12")
	tx.Category = core.Income
	if err := s.UpdateTransaction(ctx, tx); !errors.Is(err, core.ErrCategoryMismatch) {
		t.Fatalf("mismatched update: err = %v", err)
	}

	tx.Category = core.Shopping
	if err := s.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, _ := s.ListForUser(ctx, uid)
	if len(got) != 1 || !got[0].Amount.Equal(amount("12")) || got[0].Category != core.Shopping {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := s.UpdateTransaction(ctx, core.Transaction{UserID: uid}); !errors.Is(err, core.ErrInvalidTransactionID) {
		t.Fatalf("update without id: err = %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()
	tx := mustAdd(t, s, expense(uid, "10", core.Food, refDay))

	for i := 0; i < 2; i++ {
		if err := s.DeleteTransaction(ctx, tx); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if err := s.DeleteTransaction(ctx, core.Transaction{ID: 999, UserID: uid}); err != nil {
		t.Fatalf("delete of unknown id: %v", err)
	}
	if got, _ := s.ListForUser(ctx, uid); len(got) != 0 {
		t.Fatalf("ledger not empty: %+v", got)
	}
}

func TestListingsOrderAndFilter(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()

	a := mustAdd(t, s, expense(uid, "1", core.Food, refDay.AddDate(0, 0, -2)))
	b := mustAdd(t, s, income(uid, "2", refDay))
	c := mustAdd(t, s, expense(uid, "3", core.Housing, refDay))
	d := mustAdd(t, s, expense(uid, "4", core.Food, refDay.AddDate(0, 0, -1)))

	tests := []struct {
		name string
		list func() ([]core.Transaction, error)
		want []int64
	}{
		{"all", func() ([]core.Transaction, error) { return s.ListForUser(ctx, uid) }, []int64{b.ID, c.ID, d.ID, a.ID}},
		{"expenses", func() ([]core.Transaction, error) { return s.ListExpenses(ctx, uid) }, []int64{c.ID, d.ID, a.ID}},
		{"incomes", func() ([]core.Transaction, error) { return s.ListIncomes(ctx, uid) }, []int64{b.ID}},
		{"food", func() ([]core.Transaction, error) { return s.ListByCategory(ctx, uid, core.Food) }, []int64{d.ID, a.ID}},
		{"other user", func() ([]core.Transaction, error) { return s.ListForUser(ctx, uid+1) }, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.list()
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Fatalf("order = %v, want %v", idsOf(got), tt.want)
				}
			}
		})
	}

	if _, err := s.ListByCategory(ctx, uid, core.Category(0)); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("invalid category filter: err = %v", err)
	}
}

func TestWeeklySeriesEmptyWindow(t *testing.T) {
	s, uid := newTestService(t)
	series, err := s.WeeklySeries(context.Background(), uid, refDay)
	if err != nil {
		t.Fatalf("WeeklySeries: %v", err)
	}

	wantLabels := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	if len(series) != WeekDays {
		t.Fatalf("got %d buckets", len(series))
	}
	for i, b := range series {
		if b.Label != wantLabels[i] {
			t.Errorf("bucket %d label = %q, want %q", i, b.Label, wantLabels[i])
		}
		if !b.Total.IsZero() {
			t.Errorf("bucket %d total = %s, want 0", i, b.Total)
		}
	}
	if want := core.NewDate(2025, 6, 15); !series[6].Date.Equal(want) {
		t.Errorf("last bucket = %v, want %v", series[6].Date, want)
	}
}

func TestWeeklySeriesServiceSumsWindow(t *testing.T) {
	s, uid := newTestService(t)
	mustAdd(t, s, expense(uid, "10", core.Food, refDay))
	mustAdd(t, s, income(uid, "25", refDay.Add(-2*time.Hour)))
	mustAdd(t, s, expense(uid, "99", core.Food, refDay.AddDate(0, 0, -7))) // same weekday, outside window

	series, err := s.WeeklySeries(context.Background(), uid, refDay)
	if err != nil {
		t.Fatalf("WeeklySeries: %v", err)
	}
	if !series[6].Total.Equal(amount("15")) {
		t.Fatalf("today = %s, want 15", series[6].Total)
	}
	for _, b := range series[:6] {
		if !b.Total.IsZero() {
			t.Fatalf("%s bucket = %s, want 0", b.Label, b.Total)
		}
	}
}

func TestOverviewCacheInvalidatedByWrites(t *testing.T) {
	s, uid := newTestService(t, WithOverviewCache(cache.NewLRUCache[core.Overview](16, time.Hour)))
	ctx := context.Background()

	mustAdd(t, s, income(uid, "100", refDay))
	first, err := s.Overview(ctx, uid, refDay)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !first.Balance.Equal(amount("100")) {
		t.Fatalf("balance = %s", first.Balance)
	}

	tx := mustAdd(t, s, expense(uid, "30", core.Food, refDay))
	second, _ := s.Overview(ctx, uid, refDay)
	if !second.Balance.Equal(amount("70")) {
		t.Fatalf("stale overview after add: %s", second.Balance)
	}
	if !second.TotalExpenses.Equal(amount("30")) || !second.TotalIncome.Equal(amount("100")) {
		t.Fatalf("totals = %s / %s", second.TotalIncome, second.TotalExpenses)
	}

	if err := s.DeleteTransaction(ctx, tx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third, _ := s.Overview(ctx, uid, refDay)
	if !third.Balance.Equal(amount("100")) {
		t.Fatalf("stale overview after delete: %s", third.Balance)
	}
}

func TestOverviewRecentLimit(t *testing.T) {
	s, uid := newTestService(t)
	for i := 0; i < 8; i++ {
		mustAdd(t, s, expense(uid, "1", core.Food, refDay.AddDate(0, 0, -i)))
	}
	ov, err := s.Overview(context.Background(), uid, refDay)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(ov.Recent) != DefaultRecent {
		t.Fatalf("recent = %d, want %d", len(ov.Recent), DefaultRecent)
	}
	if !ov.Recent[0].Date.Equal(refDay) {
		t.Fatalf("newest first expected, got %v", ov.Recent[0].Date)
	}
}

func TestEventsPublishedAfterWrites(t *testing.T) {
	pub := &fakePublisher{}
	s, uid := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	tx := mustAdd(t, s, expense(uid, "5", core.Food, refDay))
	tx.Amount = amount("6")
	if err := s.UpdateTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAllForUser(ctx, uid); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddTransaction(ctx, expense(uid, "0", core.Food, refDay)); err == nil {
		t.Fatal("expected validation error")
	}

	want := []core.EventType{core.EventTransactionCreated, core.EventTransactionUpdated, core.EventTransactionDeleted, core.EventLedgerPurged}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if pub.events[0].txID != tx.ID || pub.events[3].txID != 0 {
		t.Fatalf("unexpected ids: %+v", pub.events)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	s, uid := newTestService(t, WithPublisher(&fakePublisher{err: errors.New("broker down")}))
	if _, err := s.AddTransaction(context.Background(), expense(uid, "5", core.Food, refDay)); err != nil {
		t.Fatalf("write failed because of publisher: %v", err)
	}
}

func TestWatchSeesWrites(t *testing.T) {
	s, uid := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, uid)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if initial := <-ch; len(initial) != 0 {
		t.Fatalf("initial view = %+v", initial)
	}

	tx := mustAdd(t, s, expense(uid, "5", core.Food, refDay))
	select {
	case view := <-ch:
		if len(view) != 1 || view[0].ID != tx.ID {
			t.Fatalf("view after add = %+v", view)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after add")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	s, uid := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustAdd(t, s, expense(uid, "1", core.Food, refDay))
	}
	if err := s.DeleteAllForUser(ctx, uid); err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if got, _ := s.ListForUser(ctx, uid); len(got) != 0 {
		t.Fatalf("ledger not empty: %d", len(got))
	}
}

func idsOf(txs []core.Transaction) []int64 {
	out := make([]int64, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

// writeOnSetCache commits a write the first time an overview is stored,
// landing it between the load and the cache fill.
type writeOnSetCache struct {
	cache.Cache[core.Overview]
	once  sync.Once
	write func()
}

func (c *writeOnSetCache) Set(key string, ov core.Overview) {
	c.once.Do(c.write)
	c.Cache.Set(key, ov)
}

func TestOverviewNotCachedWhenWriteRacesFill(t *testing.T) {
	overviews := &writeOnSetCache{Cache: cache.NewLRUCache[core.Overview](16, time.Hour)}
	s, uid := newTestService(t, WithOverviewCache(overviews))
	ctx := context.Background()
	overviews.write = func() { mustAdd(t, s, income(uid, "100", refDay)) }

	first, err := s.Overview(ctx, uid, refDay)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !first.Balance.IsZero() {
		t.Fatalf("first overview should predate the write, got %s", first.Balance)
	}

	second, err := s.Overview(ctx, uid, refDay)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !second.Balance.Equal(amount("100")) {
		t.Fatalf("cached overview balance = %s, ledger balance = 100", second.Balance)
	}
}

// hookedStore runs afterList once, right after the first ListByUser
// snapshot is taken.
type hookedStore struct {
	*memory.Store
	once      sync.Once
	afterList func()
}

func (h *hookedStore) ListByUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	txs, err := h.Store.ListByUser(ctx, userID)
	if h.afterList != nil {
		h.once.Do(h.afterList)
	}
	return txs, err
}

func newHookedService(t *testing.T) (*Service, *hookedStore, int64) {
	t.Helper()
	store := &hookedStore{Store: memory.New()}
	u, err := store.InsertUser(context.Background(), core.User{Email: "a@b.com", FullName: "Ada"})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return NewService(store, WithClock(func() time.Time { return refDay })), store, u.ID
}

func TestWatchReloadsWhenWriteLandsDuringFirstLoad(t *testing.T) {
	s, store, uid := newHookedService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var written core.Transaction
	store.afterList = func() { written = mustAdd(t, s, expense(uid, "5", core.Food, refDay)) }

	ch, err := s.Watch(ctx, uid)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	select {
	case view := <-ch:
		if len(view) != 1 || view[0].ID != written.ID {
			t.Fatalf("watch delivered %d transactions, ledger holds 1", len(view))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial view")
	}
}

func TestLoadingRaisedWhileWatchLoads(t *testing.T) {
	s, store, uid := newHookedService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var during bool
	store.afterList = func() { during = s.Loading().Get() }

	if s.Loading().Get() {
		t.Fatal("loading before any watch")
	}
	ch, err := s.Watch(ctx, uid)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	<-ch
	if !during {
		t.Fatal("loading was not raised during the load")
	}
	if s.Loading().Get() {
		t.Fatal("loading still raised after the load")
	}
}
