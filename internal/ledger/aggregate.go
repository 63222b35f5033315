package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// WeekDays is the length of the weekly series.
const WeekDays = 7

// Balance sums the signed amounts of txs.
func Balance(txs []core.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.SignedAmount())
	}
	return total
}

// Totals returns income and expenses as non-negative magnitudes.
func Totals(txs []core.Transaction) (income, expenses decimal.Decimal) {
	income, expenses = decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.IsExpense {
			expenses = expenses.Add(tx.Amount)
		} else {
			income = income.Add(tx.Amount)
		}
	}
	return income, expenses
}

// WeeklySeries buckets txs into the 7 calendar days ending at ref's date,
// oldest first. Days are taken in ref's location and every bucket is
// present even when empty. Transactions outside the window are ignored.
func WeeklySeries(txs []core.Transaction, ref time.Time) []core.DayTotal {
	loc := ref.Location()
	last := core.CalendarDay(ref, loc)

	series := make([]core.DayTotal, WeekDays)
	index := make(map[string]int, WeekDays)
	for i := range series {
		day := last.AddDate(0, 0, i-(WeekDays-1))
		series[i] = core.DayTotal{
			Date:  day,
			Label: day.Weekday().String()[:3],
			Total: decimal.Zero,
		}
		index[day.Format(time.DateOnly)] = i
	}

	for _, tx := range txs {
		key := core.CalendarDay(tx.Date, loc).Format(time.DateOnly)
		if i, ok := index[key]; ok {
			series[i].Total = series[i].Total.Add(tx.SignedAmount())
		}
	}
	return series
}

// TotalsByCategory returns the signed sum per category in declaration
// order. Categories without transactions are omitted.
func TotalsByCategory(txs []core.Transaction) []core.CategoryTotal {
	sums := make(map[core.Category]decimal.Decimal)
	for _, tx := range txs {
		sums[tx.Category] = sums[tx.Category].Add(tx.SignedAmount())
	}

	out := make([]core.CategoryTotal, 0, len(sums))
	for _, c := range core.Categories() {
		if total, ok := sums[c]; ok {
			out = append(out, core.CategoryTotal{Category: c, Total: total})
		}
	}
	return out
}

// GroupByDay groups txs by calendar day in loc, newest day first. Within a
// day the ledger order is kept.
func GroupByDay(txs []core.Transaction, loc *time.Location) []core.DayGroup {
	if loc == nil {
		loc = time.UTC
	}
	sorted := snapshot(txs)

	groups := []core.DayGroup{}
	for _, tx := range sorted {
		day := core.CalendarDay(tx.Date, loc)
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Transactions = append(groups[n-1].Transactions, tx)
			continue
		}
		groups = append(groups, core.DayGroup{Date: day, Transactions: []core.Transaction{tx}})
	}
	return groups
}

// Recent returns up to n transactions in ledger order.
func Recent(txs []core.Transaction, n int) []core.Transaction {
	sorted := snapshot(txs)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BuildOverview computes the dashboard summary over a single snapshot.
func BuildOverview(txs []core.Transaction, ref time.Time, recent int) core.Overview {
	income, expenses := Totals(txs)
	return core.Overview{
		Balance:       income.Sub(expenses),
		TotalIncome:   income,
		TotalExpenses: expenses,
		Recent:        Recent(txs, recent),
		Weekly:        WeeklySeries(txs, ref),
		ByCategory:    TotalsByCategory(txs),
	}
}

// snapshot returns a sorted copy of txs, never nil.
func snapshot(txs []core.Transaction) []core.Transaction {
	out := append(make([]core.Transaction, 0, len(txs)), txs...)
	storage.SortLedger(out)
	return out
}
