// Package sqlite is the embedded SQLite backend (modernc.org/sqlite, no cgo)
// with schema managed by golang-migrate.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

var _ storage.Store = (*Repository)(nil)

type Repository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN builds the connection string used for both the pool and migrations.
// Foreign keys must be on for the user cascade.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	created, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		UserID:      tx.UserID,
		IsExpense:   tx.IsExpense,
		Amount:      tx.Amount,
		Description: tx.Description,
		Category:    tx.Category,
		DateMs:      tx.Date.UnixMilli(),
		CreatedAtMs: r.now().UnixMilli(),
	})
	if err != nil {
		return core.Transaction{}, core.NewStorageError("create transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", created.ID,
		"user_id", created.UserID,
		"amount", created.Amount.String(),
		"category", created.Category.String())

	return created, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		ID:          tx.ID,
		UserID:      tx.UserID,
		IsExpense:   tx.IsExpense,
		Amount:      tx.Amount,
		Description: tx.Description,
		Category:    tx.Category,
		DateMs:      tx.Date.UnixMilli(),
	})
	return core.NewStorageError("update transaction", err)
}

func (r *Repository) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	return core.NewStorageError("delete transaction", r.queries.DeleteTransaction(ctx, tx.ID, tx.UserID))
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, core.NewStorageError("list transactions", err)
	}
	return txs, nil
}

func (r *Repository) ListByUserKind(ctx context.Context, userID int64, isExpense bool) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByKind(ctx, userID, isExpense)
	if err != nil {
		return nil, core.NewStorageError("list transactions by kind", err)
	}
	return txs, nil
}

func (r *Repository) ListByUserCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByCategory(ctx, userID, category)
	if err != nil {
		return nil, core.NewStorageError("list transactions by category", err)
	}
	return txs, nil
}

func (r *Repository) DeleteAllForUser(ctx context.Context, userID int64) error {
	return core.NewStorageError("delete transactions for user", r.queries.DeleteTransactionsForUser(ctx, userID))
}

func (r *Repository) InsertUser(ctx context.Context, u core.User) (core.User, error) {
	created, err := r.queries.CreateUser(ctx, CreateUserParams{
		Email:        core.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Address:      u.Address,
		CreatedAtMs:  r.now().UnixMilli(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateEmail
		}
		return core.User{}, core.NewStorageError("create user", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (core.User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	return lookupResult(u, err, "get user by id")
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := r.queries.GetUserByEmail(ctx, core.NormalizeEmail(email))
	return lookupResult(u, err, "get user by email")
}

func (r *Repository) GetByEmailAndPassword(ctx context.Context, email, password string) (core.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	return storage.MatchPassword(u, password)
}

func (r *Repository) UpdateUser(ctx context.Context, u core.User) error {
	err := r.queries.UpdateUser(ctx, UpdateUserParams{
		ID:           u.ID,
		Email:        core.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Address:      u.Address,
	})
	if isUniqueViolation(err) {
		return core.ErrDuplicateEmail
	}
	return core.NewStorageError("update user", err)
}

// DeleteUser removes the user and its transactions in one database
// transaction; the foreign key cascade covers writers that bypass this path.
func (r *Repository) DeleteUser(ctx context.Context, u core.User) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin delete user", err)
	}
	defer dbTx.Rollback()

	q := r.queries.WithTx(dbTx)
	if err := q.DeleteTransactionsForUser(ctx, u.ID); err != nil {
		return core.NewStorageError("delete user transactions", err)
	}
	if err := q.DeleteUser(ctx, u.ID); err != nil {
		return core.NewStorageError("delete user", err)
	}
	if err := dbTx.Commit(); err != nil {
		return core.NewStorageError("commit delete user", err)
	}

	slog.InfoContext(ctx, "User deleted with its transactions", "user_id", u.ID)
	return nil
}

func lookupResult(u core.User, err error, op string) (core.User, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.NewStorageError(op, err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Primary code only when extended result codes are off.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}
