// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	nextTx int64
	nextU  int64
	txs    map[int64]core.Transaction
	users  map[int64]core.User
	emails map[string]int64
	now    func() time.Time
}

func New() *Store {
	return &Store{
		txs:    make(map[int64]core.Transaction),
		users:  make(map[int64]core.User),
		emails: make(map[string]int64),
		now:    time.Now,
	}
}

func (s *Store) Close() error { return nil }

// InsertTransaction stores tx under a fresh id.
func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[tx.UserID]; !ok {
		return core.Transaction{}, core.NewStorageError("insert transaction", core.ErrNotFound)
	}
	s.nextTx++
	tx.ID = s.nextTx
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[tx.ID]
	if !ok || old.UserID != tx.UserID {
		return nil
	}
	tx.CreatedAt = old.CreatedAt
	s.txs[tx.ID] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.txs[tx.ID]; ok && old.UserID == tx.UserID {
		delete(s.txs, tx.ID)
	}
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID int64) ([]core.Transaction, error) {
	return s.filter(func(tx core.Transaction) bool { return tx.UserID == userID }), nil
}

func (s *Store) ListByUserKind(_ context.Context, userID int64, isExpense bool) ([]core.Transaction, error) {
	return s.filter(func(tx core.Transaction) bool {
		return tx.UserID == userID && tx.IsExpense == isExpense
	}), nil
}

func (s *Store) ListByUserCategory(_ context.Context, userID int64, category core.Category) ([]core.Transaction, error) {
	return s.filter(func(tx core.Transaction) bool {
		return tx.UserID == userID && tx.Category == category
	}), nil
}

func (s *Store) DeleteAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteAllLocked(userID)
	return nil
}

func (s *Store) deleteAllLocked(userID int64) {
	for id, tx := range s.txs {
		if tx.UserID == userID {
			delete(s.txs, id)
		}
	}
}

func (s *Store) filter(keep func(core.Transaction) bool) []core.Transaction {
	s.mu.RLock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	s.mu.RUnlock()
	storage.SortLedger(out)
	return out
}

// InsertUser stores u, enforcing unique emails.
func (s *Store) InsertUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = core.NormalizeEmail(u.Email)
	if _, taken := s.emails[u.Email]; taken {
		return core.User{}, core.ErrDuplicateEmail
	}
	s.nextU++
	u.ID = s.nextU
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return u, nil
}

func (s *Store) GetByID(_ context.Context, id int64) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetByEmailAndPassword(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	return storage.MatchPassword(u, password)
}

// UpdateUser replaces the stored record; unknown ids are ignored.
func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return nil
	}
	u.Email = core.NormalizeEmail(u.Email)
	if owner, taken := s.emails[u.Email]; taken && owner != u.ID {
		return core.ErrDuplicateEmail
	}
	delete(s.emails, old.Email)
	u.CreatedAt = old.CreatedAt
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

// DeleteUser removes the user and cascades to its transactions.
func (s *Store) DeleteUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return nil
	}
	delete(s.users, u.ID)
	delete(s.emails, old.Email)
	s.deleteAllLocked(u.ID)
	return nil
}
