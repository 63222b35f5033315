// Package storage defines the persistence contracts used by the ledger and
// session layers. Adapters live in the memory, sqlite, and postgres
// subpackages.
package storage

import (
	"context"
	"errors"
	"slices"

	"expensetracker/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionStore persists transactions. Listings are ordered by date
	// descending with ties broken by id ascending. Update and Delete match
	// on both id and UserID; a transaction that does not match is left
	// alone and no error is returned.
	TransactionStore interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, tx core.Transaction) error
		ListByUser(ctx context.Context, userID int64) ([]core.Transaction, error)
		ListByUserKind(ctx context.Context, userID int64, isExpense bool) ([]core.Transaction, error)
		ListByUserCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error)
		DeleteAllForUser(ctx context.Context, userID int64) error
	}

	// UserStore persists users. Lookups of absent users return
	// core.ErrNotFound; inserting a taken email returns
	// core.ErrDuplicateEmail. Deleting a user removes its transactions.
	UserStore interface {
		InsertUser(ctx context.Context, u core.User) (core.User, error)
		GetByID(ctx context.Context, id int64) (core.User, error)
		GetByEmail(ctx context.Context, email string) (core.User, error)
		// GetByEmailAndPassword matches the email exactly and checks the
		// password against the stored hash.
		GetByEmailAndPassword(ctx context.Context, email, password string) (core.User, error)
		UpdateUser(ctx context.Context, u core.User) error
		DeleteUser(ctx context.Context, u core.User) error
	}

	// Store is implemented by every backend.
	Store interface {
		TransactionStore
		UserStore
		Close() error
	}
)

// SortLedger orders transactions by date descending, ties by id ascending.
func SortLedger(txs []core.Transaction) {
	slices.SortStableFunc(txs, func(a, b core.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// MatchPassword resolves a GetByEmailAndPassword lookup once the user row
// has been fetched: a wrong password reads as an absent user.
func MatchPassword(u core.User, password string) (core.User, error) {
	if err := core.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, core.ErrAuthenticationFailed) {
			return core.User{}, core.ErrNotFound
		}
		return core.User{}, err
	}
	return u, nil
}
