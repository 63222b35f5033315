package http

import (
	"time"

	"expensetracker/internal/core"
)

const (
	kindExpense = "expense"
	kindIncome  = "income"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

// transactionRequest is the body of POST and PUT on transactions. Amount is
// a decimal string and Date is YYYY-MM-DD; an empty date means today.
type transactionRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Date        string `json:"date,omitempty"`
}

type transactionResponse struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	SignedAmount string    `json:"signed_amount"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Date         string    `json:"date"`
	CreatedAt    time.Time `json:"created_at"`
}

type dayTotalResponse struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Total string `json:"total"`
}

type categoryTotalResponse struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

type dayGroupResponse struct {
	Date         string                `json:"date"`
	Transactions []transactionResponse `json:"transactions"`
}

type overviewResponse struct {
	Date          string                  `json:"date"`
	Balance       string                  `json:"balance"`
	TotalIncome   string                  `json:"total_income"`
	TotalExpenses string                  `json:"total_expenses"`
	Recent        []transactionResponse   `json:"recent"`
	Weekly        []dayTotalResponse      `json:"weekly"`
	ByCategory    []categoryTotalResponse `json:"by_category"`
}

type categoryResponse struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Kind:         kindOf(tx.IsExpense),
		Amount:       core.FormatAmount(tx.Amount),
		SignedAmount: core.FormatAmount(tx.SignedAmount()),
		Description:  tx.Description,
		Category:     tx.Category.String(),
		Date:         tx.Date.Format(time.DateOnly),
		CreatedAt:    tx.CreatedAt,
	}
}

func toTransactionResponses(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}

func toWeeklyResponse(days []core.DayTotal) []dayTotalResponse {
	out := make([]dayTotalResponse, 0, len(days))
	for _, d := range days {
		out = append(out, dayTotalResponse{
			Date:  d.Date.Format(time.DateOnly),
			Label: d.Label,
			Total: core.FormatAmount(d.Total),
		})
	}
	return out
}

func toCategoryTotals(totals []core.CategoryTotal) []categoryTotalResponse {
	out := make([]categoryTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryTotalResponse{Category: t.Category.String(), Total: core.FormatAmount(t.Total)})
	}
	return out
}

func toDayGroups(groups []core.DayGroup) []dayGroupResponse {
	out := make([]dayGroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, dayGroupResponse{
			Date:         g.Date.Format(time.DateOnly),
			Transactions: toTransactionResponses(g.Transactions),
		})
	}
	return out
}

func toOverviewResponse(ref time.Time, ov core.Overview) overviewResponse {
	return overviewResponse{
		Date:          ref.Format(time.DateOnly),
		Balance:       core.FormatAmount(ov.Balance),
		TotalIncome:   core.FormatAmount(ov.TotalIncome),
		TotalExpenses: core.FormatAmount(ov.TotalExpenses),
		Recent:        toTransactionResponses(ov.Recent),
		Weekly:        toWeeklyResponse(ov.Weekly),
		ByCategory:    toCategoryTotals(ov.ByCategory),
	}
}
