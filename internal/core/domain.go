package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxDescriptionLength = 200

type (
	// Transaction is a single ledger entry. Amount is always a non-negative
	// magnitude; the direction comes from IsExpense.
	Transaction struct {
		ID          int64           `json:"id"`
		UserID      int64           `json:"user_id"`
		IsExpense   bool            `json:"is_expense"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    Category        `json:"category"`
		Date        time.Time       `json:"date"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	// NewTransaction carries the fields a caller supplies when recording
	// a transaction. The store assigns the id.
	NewTransaction struct {
		UserID      int64
		IsExpense   bool
		Amount      decimal.Decimal
		Description string
		Category    Category
		Date        time.Time
	}

	User struct {
		ID           int64     `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		FullName     string    `json:"full_name"`
		Address      string    `json:"address"`
		CreatedAt    time.Time `json:"created_at"`
	}

	// NewUser is the registration payload. Password is plaintext here and
	// only here; it is hashed before it reaches a store.
	NewUser struct {
		Email    string
		Password string
		FullName string
		Address  string
	}
)

// SignedAmount returns the amount with its direction applied: negative for
// expenses, positive for income.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.IsExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Validate checks the invariants shared by new and updated transactions.
func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := ValidateDescription(t.Description); err != nil {
		return err
	}
	return ValidateCategory(t.Category, t.IsExpense)
}

// Transaction converts the input into an unsaved Transaction. A zero date
// defaults to now.
func (n NewTransaction) Transaction(now time.Time) Transaction {
	date := n.Date
	if date.IsZero() {
		date = now
	}
	return Transaction{
		UserID:      n.UserID,
		IsExpense:   n.IsExpense,
		Amount:      n.Amount,
		Description: strings.TrimSpace(n.Description),
		Category:    n.Category,
		Date:        date,
	}
}

// ValidateAmount requires a strictly positive amount in whole cents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func ValidateDescription(desc string) error {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ErrInvalidDescription
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}

// ValidateCategory enforces category == Income iff the transaction is not
// an expense.
func ValidateCategory(c Category, isExpense bool) error {
	if !c.Valid() {
		return ErrUnknownCategory
	}
	if (c == Income) == isExpense {
		return ErrCategoryMismatch
	}
	return nil
}

// CalendarDay truncates t to midnight of its calendar date in loc.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NewDate creates a date at midnight UTC.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
