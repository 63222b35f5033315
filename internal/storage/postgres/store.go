// Package postgres provides Postgres-backed persistence through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for users and transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and applies the schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_expense BOOLEAN NOT NULL,
			amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS transactions_user_date_idx ON transactions (user_id, date DESC, id);`,
		`CREATE INDEX IF NOT EXISTS transactions_user_category_idx ON transactions (user_id, category);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const transactionColumns = `id, user_id, is_expense, amount::text, description, category, date, created_at`

const userColumns = `id, email, password_hash, full_name, address, created_at`

func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, is_expense, amount, description, category, date)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING ` + transactionColumns
	row := s.pool.QueryRow(ctx, query,
		tx.UserID, tx.IsExpense, tx.Amount.String(), tx.Description, tx.Category.String(), tx.Date)
	created, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, core.NewStorageError("create transaction", err)
	}
	slog.DebugContext(ctx, "Transaction saved to Postgres", "id", created.ID, "user_id", created.UserID)
	return created, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	const query = `
		UPDATE transactions
		SET is_expense = $1, amount = $2::numeric, description = $3, category = $4, date = $5
		WHERE id = $6 AND user_id = $7`
	_, err := s.pool.Exec(ctx, query,
		tx.IsExpense, tx.Amount.String(), tx.Description, tx.Category.String(), tx.Date, tx.ID, tx.UserID)
	return core.NewStorageError("update transaction", err)
}

func (s *Store) DeleteTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, tx.ID, tx.UserID)
	return core.NewStorageError("delete transaction", err)
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY date DESC, id ASC`
	return s.listTransactions(ctx, "list transactions", query, userID)
}

func (s *Store) ListByUserKind(ctx context.Context, userID int64, isExpense bool) ([]core.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 AND is_expense = $2 ORDER BY date DESC, id ASC`
	return s.listTransactions(ctx, "list transactions by kind", query, userID, isExpense)
}

func (s *Store) ListByUserCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 AND category = $2 ORDER BY date DESC, id ASC`
	return s.listTransactions(ctx, "list transactions by category", query, userID, category.String())
}

func (s *Store) listTransactions(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.NewStorageError(op, err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, core.NewStorageError(op, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError(op, err)
	}
	return txs, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID)
	return core.NewStorageError("delete transactions for user", err)
}

func (s *Store) InsertUser(ctx context.Context, u core.User) (core.User, error) {
	const query = `
		INSERT INTO users (email, password_hash, full_name, address)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, core.NormalizeEmail(u.Email), u.PasswordHash, u.FullName, u.Address)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateEmail
		}
		return core.User{}, core.NewStorageError("create user", err)
	}
	return created, nil
}

// GetByID fetches a user by id.
func (s *Store) GetByID(ctx context.Context, id int64) (core.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return lookupResult(row, "get user by id")
}

// GetByEmail fetches a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (core.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, core.NormalizeEmail(email))
	return lookupResult(row, "get user by email")
}

func (s *Store) GetByEmailAndPassword(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	return storage.MatchPassword(u, password)
}

func (s *Store) UpdateUser(ctx context.Context, u core.User) error {
	const query = `
		UPDATE users SET email = $1, password_hash = $2, full_name = $3, address = $4
		WHERE id = $5`
	_, err := s.pool.Exec(ctx, query, core.NormalizeEmail(u.Email), u.PasswordHash, u.FullName, u.Address, u.ID)
	if isUniqueViolation(err) {
		return core.ErrDuplicateEmail
	}
	return core.NewStorageError("update user", err)
}

// DeleteUser removes the user and its transactions in one database transaction.
func (s *Store) DeleteUser(ctx context.Context, u core.User) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, u.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, u.ID)
		return err
	})
	if err != nil {
		return core.NewStorageError("delete user", err)
	}
	slog.InfoContext(ctx, "User deleted with its transactions", "user_id", u.ID)
	return nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx               core.Transaction
		amount, category string
		date, createdAt  time.Time
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.IsExpense, &amount, &tx.Description, &category, &date, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	c, err := core.ParseCategory(category)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = d
	tx.Category = c
	tx.Date = date.UTC()
	tx.CreatedAt = createdAt.UTC()
	return tx, nil
}

func scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Address, &u.CreatedAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func lookupResult(row pgx.Row, op string) (core.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.NewStorageError(op, err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
