package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const transactionColumns = `id, user_id, is_expense, amount, description, category, date, created_at`

const userColumns = `id, email, password_hash, full_name, address, created_at`

const createTransaction = `
INSERT INTO transactions (user_id, is_expense, amount, description, category, date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	UserID      int64
	IsExpense   bool
	Amount      decimal.Decimal
	Description string
	Category    core.Category
	DateMs      int64
	CreatedAtMs int64
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID,
		arg.IsExpense,
		arg.Amount,
		arg.Description,
		arg.Category,
		arg.DateMs,
		arg.CreatedAtMs,
	)
	return scanTransaction(row)
}

const updateTransaction = `
UPDATE transactions
SET is_expense = ?, amount = ?, description = ?, category = ?, date = ?
WHERE id = ? AND user_id = ?`

type UpdateTransactionParams struct {
	ID          int64
	UserID      int64
	IsExpense   bool
	Amount      decimal.Decimal
	Description string
	Category    core.Category
	DateMs      int64
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) error {
	_, err := q.db.ExecContext(ctx, updateTransaction,
		arg.IsExpense,
		arg.Amount,
		arg.Description,
		arg.Category,
		arg.DateMs,
		arg.ID,
		arg.UserID,
	)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id, userID int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	return err
}

const deleteTransactionsForUser = `DELETE FROM transactions WHERE user_id = ?`

func (q *Queries) DeleteTransactionsForUser(ctx context.Context, userID int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransactionsForUser, userID)
	return err
}

const listTransactionsByUser = `
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ?
ORDER BY date DESC, id ASC`

func (q *Queries) ListTransactionsByUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByUser, userID)
}

const listTransactionsByKind = `
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND is_expense = ?
ORDER BY date DESC, id ASC`

func (q *Queries) ListTransactionsByKind(ctx context.Context, userID int64, isExpense bool) ([]core.Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByKind, userID, isExpense)
}

const listTransactionsByCategory = `
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = ? AND category = ?
ORDER BY date DESC, id ASC`

func (q *Queries) ListTransactionsByCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByCategory, userID, category)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...interface{}) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createUser = `
INSERT INTO users (email, password_hash, full_name, address, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Address      string
	CreatedAtMs  int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (core.User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Email,
		arg.PasswordHash,
		arg.FullName,
		arg.Address,
		arg.CreatedAtMs,
	)
	return scanUser(row)
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const updateUser = `
UPDATE users SET email = ?, password_hash = ?, full_name = ?, address = ?
WHERE id = ?`

type UpdateUserParams struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	Address      string
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) error {
	_, err := q.db.ExecContext(ctx, updateUser,
		arg.Email,
		arg.PasswordHash,
		arg.FullName,
		arg.Address,
		arg.ID,
	)
	return err
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteUser, id)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                core.Transaction
		dateMs, createdMs int64
	)
	if err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.IsExpense,
		&tx.Amount,
		&tx.Description,
		&tx.Category,
		&dateMs,
		&createdMs,
	); err != nil {
		return core.Transaction{}, err
	}
	tx.Date = time.UnixMilli(dateMs).UTC()
	tx.CreatedAt = time.UnixMilli(createdMs).UTC()
	return tx, nil
}

func scanUser(row scanner) (core.User, error) {
	var (
		u         core.User
		createdMs int64
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Address,
		&createdMs,
	); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = time.UnixMilli(createdMs).UTC()
	return u, nil
}
