// Package storagetest holds the behaviour every storage.Store must share.
// Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Factory returns an empty store. Cleanup is the caller's job (t.Cleanup).
type Factory func(t *testing.T) storage.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("UserInsertAndLookup", func(t *testing.T) { testUserInsertAndLookup(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("CredentialLookup", func(t *testing.T) { testCredentialLookup(t, newStore(t)) })
	t.Run("TransactionOrdering", func(t *testing.T) { testTransactionOrdering(t, newStore(t)) })
	t.Run("TransactionFilters", func(t *testing.T) { testTransactionFilters(t, newStore(t)) })
	t.Run("UpdateAndLenientDelete", func(t *testing.T) { testUpdateAndLenientDelete(t, newStore(t)) })
	t.Run("WritesScopedToOwner", func(t *testing.T) { testWritesScopedToOwner(t, newStore(t)) })
	t.Run("CascadeOnUserDelete", func(t *testing.T) { testCascadeOnUserDelete(t, newStore(t)) })
	t.Run("DeleteAllForUser", func(t *testing.T) { testDeleteAllForUser(t, newStore(t)) })
}

func mustUser(t *testing.T, s storage.Store, email string) core.User {
	t.Helper()
	hash, err := core.HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := s.InsertUser(context.Background(), core.User{Email: email, PasswordHash: hash, FullName: "Test User"})
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return u
}

func mustTx(t *testing.T, s storage.Store, userID int64, amount string, cat core.Category, date time.Time) core.Transaction {
	t.Helper()
	tx, err := s.InsertTransaction(context.Background(), core.Transaction{
		UserID:      userID,
		IsExpense:   cat != core.Income,
		Amount:      decimal.RequireFromString(amount),
		Description: cat.String() + " " + amount,
		Category:    cat,
		Date:        date,
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	if tx.ID <= 0 {
		t.Fatalf("expected store-assigned id, got %d", tx.ID)
	}
	return tx
}

func day(n int) time.Time {
	return time.Date(2025, 6, n, 12, 0, 0, 0, time.UTC)
}

func testUserInsertAndLookup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "Ada@Example.com")
	if u.ID <= 0 {
		t.Fatalf("expected id, got %d", u.ID)
	}

	byID, err := s.GetByID(ctx, u.ID)
	if err != nil || byID.Email != "ada@example.com" {
		t.Fatalf("GetByID: %+v err=%v", byID, err)
	}
	byEmail, err := s.GetByEmail(ctx, "ada@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("GetByEmail: %+v err=%v", byEmail, err)
	}
	if _, err := s.GetByID(ctx, u.ID+100); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	u.FullName = "Ada Lovelace"
	u.Address = "London"
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ := s.GetByID(ctx, u.ID)
	if got.FullName != "Ada Lovelace" || got.Address != "London" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func testDuplicateEmail(t *testing.T, s storage.Store) {
	mustUser(t, s, "a@b.com")
	_, err := s.InsertUser(context.Background(), core.User{Email: "a@b.com", PasswordHash: "x", FullName: "Other"})
	if !errors.Is(err, core.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func testCredentialLookup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@b.com")
	got, err := s.GetByEmailAndPassword(ctx, "a@b.com", "secret1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("expected match, got %+v err=%v", got, err)
	}
	if _, err := s.GetByEmailAndPassword(ctx, "a@b.com", "wrong"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("wrong password should read as absent, got %v", err)
	}
	if _, err := s.GetByEmailAndPassword(ctx, "x@b.com", "secret1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown email should read as absent, got %v", err)
	}
}

func testTransactionOrdering(t *testing.T, s storage.Store) {
	u := mustUser(t, s, "a@b.com")
	// Inserted out of order, with a tie on day 5.
	a := mustTx(t, s, u.ID, "1", core.Food, day(3))
	b := mustTx(t, s, u.ID, "2", core.Food, day(5))
	c := mustTx(t, s, u.ID, "3", core.Health, day(1))
	d := mustTx(t, s, u.ID, "4", core.Shopping, day(5))

	got, err := s.ListByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	want := []int64{b.ID, d.ID, a.ID, c.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d (%v)", i, id, got[i].ID, ids(got))
		}
	}
	if !got[0].Amount.Equal(decimal.NewFromInt(2)) || got[0].Category != core.Food || !got[0].Date.Equal(day(5)) {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
}

func testTransactionFilters(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@b.com")
	other := mustUser(t, s, "c@d.com")
	mustTx(t, s, u.ID, "10", core.Food, day(1))
	mustTx(t, s, u.ID, "20", core.Income, day(2))
	mustTx(t, s, u.ID, "30", core.Food, day(3))
	mustTx(t, s, other.ID, "40", core.Food, day(4))

	expenses, err := s.ListByUserKind(ctx, u.ID, true)
	if err != nil || len(expenses) != 2 {
		t.Fatalf("expenses: %v err=%v", ids(expenses), err)
	}
	incomes, err := s.ListByUserKind(ctx, u.ID, false)
	if err != nil || len(incomes) != 1 || incomes[0].Category != core.Income {
		t.Fatalf("incomes: %v err=%v", ids(incomes), err)
	}
	food, err := s.ListByUserCategory(ctx, u.ID, core.Food)
	if err != nil || len(food) != 2 || !food[0].Date.Equal(day(3)) {
		t.Fatalf("food: %v err=%v", ids(food), err)
	}
	none, err := s.ListByUserCategory(ctx, u.ID, core.Education)
	if err != nil || len(none) != 0 {
		t.Fatalf("education: %v err=%v", ids(none), err)
	}
}

func testUpdateAndLenientDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@b.com")
	tx := mustTx(t, s, u.ID, "10", core.Food, day(1))

	tx.Amount = decimal.RequireFromString("12.50")
	tx.Category = core.Shopping
	if err := s.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.ListByUser(ctx, u.ID)
	if len(got) != 1 || !got[0].Amount.Equal(decimal.RequireFromString("12.5")) || got[0].Category != core.Shopping {
		t.Fatalf("update not applied: %+v", got)
	}

	ghost := tx
	ghost.ID = tx.ID + 1000
	if err := s.UpdateTransaction(ctx, ghost); err != nil {
		t.Fatalf("update of unknown id should be a no-op, got %v", err)
	}

	if err := s.DeleteTransaction(ctx, tx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTransaction(ctx, tx); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	got, _ = s.ListByUser(ctx, u.ID)
	if len(got) != 0 {
		t.Fatalf("expected empty ledger, got %v", ids(got))
	}
}

func testWritesScopedToOwner(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "a@b.com")
	other := mustUser(t, s, "c@d.com")
	tx := mustTx(t, s, owner.ID, "10", core.Food, day(1))

	forged := tx
	forged.UserID = other.ID
	forged.Description = "hijacked"
	if err := s.UpdateTransaction(ctx, forged); err != nil {
		t.Fatalf("foreign update should be a silent no-op, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, forged); err != nil {
		t.Fatalf("foreign delete should be a silent no-op, got %v", err)
	}

	got, _ := s.ListByUser(ctx, owner.ID)
	if len(got) != 1 || got[0].Description != tx.Description {
		t.Fatalf("owner's transaction changed by another user: %+v", got)
	}
	if theirs, _ := s.ListByUser(ctx, other.ID); len(theirs) != 0 {
		t.Fatalf("transaction moved to another user: %v", ids(theirs))
	}
}

func testCascadeOnUserDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@b.com")
	keep := mustUser(t, s, "c@d.com")
	for i := 1; i <= 3; i++ {
		mustTx(t, s, u.ID, "5", core.Food, day(i))
	}
	mustTx(t, s, keep.ID, "5", core.Food, day(1))

	if err := s.DeleteUser(ctx, u); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err := s.ListByUser(ctx, u.ID)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected cascade, got %v err=%v", ids(got), err)
	}
	if _, err := s.GetByID(ctx, u.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("user should be gone, got %v", err)
	}
	others, _ := s.ListByUser(ctx, keep.ID)
	if len(others) != 1 {
		t.Fatalf("other user's ledger touched: %v", ids(others))
	}
	// The email is free again.
	mustUser(t, s, "a@b.com")
}

func testDeleteAllForUser(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "a@b.com")
	mustTx(t, s, u.ID, "1", core.Food, day(1))
	mustTx(t, s, u.ID, "2", core.Income, day(2))
	if err := s.DeleteAllForUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	got, _ := s.ListByUser(ctx, u.ID)
	if len(got) != 0 {
		t.Fatalf("expected empty ledger, got %v", ids(got))
	}
	if _, err := s.GetByID(ctx, u.ID); err != nil {
		t.Fatalf("user must survive DeleteAllForUser: %v", err)
	}
}

func ids(txs []core.Transaction) []int64 {
	out := make([]int64, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
