// Package ledger validates and records transactions and derives the
// balance, weekly series and dashboard views from a user's ledger.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/observable"
	"expensetracker/internal/storage"
)

// DefaultRecent is how many transactions the overview lists.
const DefaultRecent = 5

// Publisher announces committed ledger changes.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, eventType core.EventType, userID, transactionID int64) error
}

// Service is the business layer over a TransactionStore. It holds no lock
// across validate and persist; the store serializes writes.
type Service struct {
	store     storage.TransactionStore
	publisher Publisher
	overviews cache.Cache[core.Overview]
	loads     singleflight.Group
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time

	mu       sync.Mutex
	gens     map[int64]uint64
	views    map[int64]*observable.Value[[]core.Transaction]
	inflight int
	loading  *observable.Value[bool]
}

type Option func(*Service)

// WithPublisher sends an event after every successful write.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithOverviewCache memoizes Overview results until the user's next write.
func WithOverviewCache(c cache.Cache[core.Overview]) Option {
	return func(s *Service) { s.overviews = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.TransactionStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		now:     time.Now,
		gens:    make(map[int64]uint64),
		views:   make(map[int64]*observable.Value[[]core.Transaction]),
		loading: observable.New(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.FromContext(context.Background())
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.events = log.NewStructuredLogger(s.logger)
	return s
}

// AddTransaction validates in and stores it, returning the stored record.
func (s *Service) AddTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	tx := in.Transaction(s.now())
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	s.changed(ctx, core.EventTransactionCreated, created.UserID, created.ID)
	return created, nil
}

// UpdateTransaction replaces the stored fields of tx. Unknown ids are a
// no-op at the store.
func (s *Service) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if tx.ID <= 0 {
		return core.ErrInvalidTransactionID
	}
	tx.Description = strings.TrimSpace(tx.Description)
	if err := tx.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.changed(ctx, core.EventTransactionUpdated, tx.UserID, tx.ID)
	return nil
}

// DeleteTransaction removes tx. Deleting an absent transaction succeeds.
func (s *Service) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	if err := s.store.DeleteTransaction(ctx, tx); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.changed(ctx, core.EventTransactionDeleted, tx.UserID, tx.ID)
	return nil
}

// DeleteAllForUser removes the whole ledger of userID.
func (s *Service) DeleteAllForUser(ctx context.Context, userID int64) error {
	if err := s.store.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}

	s.changed(ctx, core.EventLedgerPurged, userID, 0)
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	return s.list(s.store.ListByUser(ctx, userID))
}

func (s *Service) ListExpenses(ctx context.Context, userID int64) ([]core.Transaction, error) {
	return s.list(s.store.ListByUserKind(ctx, userID, true))
}

func (s *Service) ListIncomes(ctx context.Context, userID int64) ([]core.Transaction, error) {
	return s.list(s.store.ListByUserKind(ctx, userID, false))
}

func (s *Service) ListByCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error) {
	if !category.Valid() {
		return nil, core.ErrUnknownCategory
	}
	return s.list(s.store.ListByUserCategory(ctx, userID, category))
}

// list re-sorts store output so the ordering holds for any backend.
func (s *Service) list(txs []core.Transaction, err error) ([]core.Transaction, error) {
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	storage.SortLedger(txs)
	return txs, nil
}

// Balance is the sum of signed amounts over the user's ledger.
func (s *Service) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return Balance(txs), nil
}

// WeeklySeries returns the 7 day buckets ending at ref's calendar date.
func (s *Service) WeeklySeries(ctx context.Context, userID int64, ref time.Time) ([]core.DayTotal, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return WeeklySeries(txs, ref), nil
}

func (s *Service) Recent(ctx context.Context, userID int64, n int) ([]core.Transaction, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Recent(txs, n), nil
}

func (s *Service) TotalsByCategory(ctx context.Context, userID int64) ([]core.CategoryTotal, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return TotalsByCategory(txs), nil
}

func (s *Service) GroupByDay(ctx context.Context, userID int64, loc *time.Location) ([]core.DayGroup, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GroupByDay(txs, loc), nil
}

// Overview builds the dashboard for userID at ref. Results are cached per
// user and calendar day until the user's next write; concurrent misses
// for the same key share one load.
func (s *Service) Overview(ctx context.Context, userID int64, ref time.Time) (core.Overview, error) {
	if s.overviews == nil {
		return s.loadOverview(ctx, userID, ref)
	}

	key := overviewKey(userID, ref)
	if ov, ok := s.overviews.Get(key); ok {
		return ov, nil
	}

	gen := s.generation(userID)
	v, err, _ := s.loads.Do(key, func() (any, error) {
		ov, err := s.loadOverview(ctx, userID, ref)
		if err != nil {
			return core.Overview{}, err
		}
		// A write during the load or the Set makes this result stale;
		// changed bumps the generation before its DeletePrefix.
		if s.generation(userID) == gen {
			s.overviews.Set(key, ov)
			if s.generation(userID) != gen {
				s.overviews.Delete(key)
			}
		}
		return ov, nil
	})
	if err != nil {
		return core.Overview{}, err
	}
	return v.(core.Overview), nil
}

func (s *Service) loadOverview(ctx context.Context, userID int64, ref time.Time) (core.Overview, error) {
	txs, err := s.ListForUser(ctx, userID)
	if err != nil {
		return core.Overview{}, err
	}
	return BuildOverview(txs, ref, DefaultRecent), nil
}

func overviewPrefix(userID int64) string {
	return fmt.Sprintf("overview:%d:", userID)
}

func overviewKey(userID int64, ref time.Time) string {
	return overviewPrefix(userID) + ref.Format(time.DateOnly) + ":" + ref.Location().String()
}

// Watch returns a channel carrying the user's ledger now and after every
// write made through this Service. It is closed when ctx is done.
func (s *Service) Watch(ctx context.Context, userID int64) (<-chan []core.Transaction, error) {
	s.mu.Lock()
	if view, ok := s.views[userID]; ok {
		defer s.mu.Unlock()
		return view.Subscribe(ctx), nil
	}
	s.mu.Unlock()

	for {
		gen := s.generation(userID)
		txs, err := s.refresh(ctx, userID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		view, ok := s.views[userID]
		if !ok && s.gens[userID] == gen {
			view = observable.New(txs)
			s.views[userID] = view
			ok = true
		}
		if ok {
			// Subscribing under the lock keeps changed from dropping the
			// view as unwatched in between.
			ch := view.Subscribe(ctx)
			s.mu.Unlock()
			return ch, nil
		}
		s.mu.Unlock()
	}
}

// Loading reports whether a watched ledger is being reloaded.
func (s *Service) Loading() observable.Reader[bool] {
	return s.loading
}

// refresh reads the user's ledger with the loading flag raised.
func (s *Service) refresh(ctx context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	s.inflight++
	s.loading.Set(true)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		if s.inflight == 0 {
			s.loading.Set(false)
		}
		s.mu.Unlock()
	}()
	return s.ListForUser(ctx, userID)
}

func (s *Service) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// changed runs after every committed write: drop cached views, refresh
// watchers and announce the event.
func (s *Service) changed(ctx context.Context, eventType core.EventType, userID, transactionID int64) {
	s.mu.Lock()
	s.gens[userID]++
	gen := s.gens[userID]
	view := s.views[userID]
	if view != nil && view.Subscribers() == 0 {
		delete(s.views, userID)
		view = nil
	}
	s.mu.Unlock()

	if s.overviews != nil {
		s.overviews.DeletePrefix(overviewPrefix(userID))
	}

	if view != nil {
		if txs, err := s.refresh(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "Failed to refresh ledger view", log.FieldUserID, userID, log.FieldError, err)
		} else {
			// A newer write refreshes the view itself; skip the older snapshot.
			s.mu.Lock()
			if s.gens[userID] == gen {
				view.Set(txs)
			}
			s.mu.Unlock()
		}
	}

	s.events.LogLedgerChange(ctx, string(eventType), userID, transactionID)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, eventType, userID, transactionID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, string(eventType),
			log.FieldUserID, userID,
			log.FieldTransactionID, transactionID,
			log.FieldError, err)
	}
}
