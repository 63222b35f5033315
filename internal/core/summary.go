package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayTotal is one bucket of the weekly series.
type DayTotal struct {
	Date  time.Time       `json:"date"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

// CategoryTotal represents the signed sum of a category's transactions.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// DayGroup holds the transactions recorded on one calendar day.
type DayGroup struct {
	Date         time.Time     `json:"date"`
	Transactions []Transaction `json:"transactions"`
}

// Overview is the dashboard summary for a user at a reference instant.
type Overview struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Recent        []Transaction   `json:"recent"`
	Weekly        []DayTotal      `json:"weekly"`
	ByCategory    []CategoryTotal `json:"by_category"`
}
