package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bilancio/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func categoryByName(t *testing.T, repo *SQLiteRepository, name string) core.Category {
	t.Helper()
	cats, err := repo.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	for _, c := range cats {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("category %q not seeded", name)
	return core.Category{}
}

func addTx(t *testing.T, repo *SQLiteRepository, userID int64, cat core.Category, cents int64, date core.Date, desc string) core.Transaction {
	t.Helper()
	tx, err := repo.AddTransaction(context.Background(), core.Transaction{
		UserID:      userID,
		CategoryID:  cat.ID,
		Type:        cat.Type,
		Amount:      core.Money{Cents: cents},
		Date:        date,
		Description: desc,
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	return tx
}

func balance(t *testing.T, repo *SQLiteRepository, userID int64) int64 {
	t.Helper()
	u, err := repo.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.Money.Cents
}

func TestCreateUserDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "alice", "hash-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Money.Cents != 0 {
		t.Fatalf("new user balance = %d, want 0", u.Money.Cents)
	}

	if _, err := repo.CreateUser(ctx, "alice", "hash-2"); !errors.Is(err, core.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	// The failed attempt must not alter the stored hash.
	stored, err := repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.PasswordHash != "hash-1" {
		t.Fatalf("hash changed to %q after duplicate attempt", stored.PasswordHash)
	}

	// Usernames are case-sensitive: "Alice" is a different user.
	if _, err := repo.GetUserByUsername(ctx, "Alice"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for different case, got %v", err)
	}
}

func TestBalanceFollowsLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "bob", "h")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	salary := categoryByName(t, repo, "Salary")
	rent := categoryByName(t, repo, "Rent")
	jan1 := core.NewDate(2024, 1, 1)

	addTx(t, repo, u.ID, salary, 300000, jan1, "january pay")
	if got := balance(t, repo, u.ID); got != 300000 {
		t.Fatalf("after income: balance = %d, want 300000", got)
	}

	rentTx := addTx(t, repo, u.ID, rent, 100000, jan1, "january rent")
	if got := balance(t, repo, u.ID); got != 200000 {
		t.Fatalf("after expense: balance = %d, want 200000", got)
	}

	deleted, err := repo.DeleteTransaction(ctx, rentTx.ID, u.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if got := balance(t, repo, u.ID); got != 300000 {
		t.Fatalf("after delete: balance = %d, want 300000", got)
	}
}

func TestDeleteForeignTransactionIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	owner, _ := repo.CreateUser(ctx, "owner", "h")
	intruder, _ := repo.CreateUser(ctx, "intruder", "h")
	salary := categoryByName(t, repo, "Salary")

	tx := addTx(t, repo, owner.ID, salary, 5000, core.NewDate(2024, 2, 2), "")

	deleted, err := repo.DeleteTransaction(ctx, tx.ID, intruder.ID)
	if err != nil {
		t.Fatalf("foreign delete returned error: %v", err)
	}
	if deleted {
		t.Fatal("foreign delete reported success")
	}
	if got := balance(t, repo, owner.ID); got != 5000 {
		t.Fatalf("owner balance changed: %d", got)
	}
	if _, err := repo.GetTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("transaction removed by foreign delete: %v", err)
	}
}

func TestUpdateTransactionCorrectsBalance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "carol", "h")
	groceries := categoryByName(t, repo, "Groceries")
	tx := addTx(t, repo, u.ID, groceries, 4000, core.NewDate(2024, 3, 3), "weekly shop")
	if got := balance(t, repo, u.ID); got != -4000 {
		t.Fatalf("after add: balance = %d", got)
	}

	// Raising an expense amount lowers the balance by the difference.
	if err := repo.UpdateTransaction(ctx, tx.ID, u.ID, 6500, "bigger shop", core.NewDate(2024, 3, 4)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := balance(t, repo, u.ID); got != -6500 {
		t.Fatalf("after edit: balance = %d, want -6500", got)
	}

	got, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.Cents != 6500 || got.Description != "bigger shop" || got.Date.String() != "2024-03-04" {
		t.Fatalf("edit not applied: %+v", got)
	}
	if got.Type != core.Expense || got.CategoryID != groceries.ID {
		t.Fatalf("type or category changed on edit: %+v", got)
	}

	if err := repo.UpdateTransaction(ctx, 9999, u.ID, 100, "", core.NewDate(2024, 1, 1)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestListTransactionsOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "dave", "h")
	salary := categoryByName(t, repo, "Salary")
	first := addTx(t, repo, u.ID, salary, 100, core.NewDate(2024, 1, 1), "a")
	second := addTx(t, repo, u.ID, salary, 200, core.NewDate(2024, 1, 2), "b")
	third := addTx(t, repo, u.ID, salary, 300, core.NewDate(2024, 1, 3), "c")

	all, err := repo.ListTransactions(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != third.ID || all[1].ID != second.ID || all[2].ID != first.ID {
		t.Fatalf("expected most-recent-id-first, got %+v", all)
	}
	if all[0].CategoryName != "Salary" {
		t.Fatalf("category join missing: %+v", all[0])
	}

	limited, err := repo.ListTransactions(ctx, u.ID, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != third.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestSumByDateMergesSameDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "erin", "h")
	salary := categoryByName(t, repo, "Salary")
	rent := categoryByName(t, repo, "Rent")
	day := core.NewDate(2024, 5, 10)

	addTx(t, repo, u.ID, salary, 10000, day, "")
	addTx(t, repo, u.ID, rent, 4000, day, "")

	totals, err := repo.SumByDate(ctx, u.ID)
	if err != nil {
		t.Fatalf("sum by date: %v", err)
	}
	if len(totals) != 1 {
		t.Fatalf("expected one merged row, got %d", len(totals))
	}
	row := totals[0]
	if row.Date.String() != "2024-05-10" || row.Income.Cents != 10000 || row.Expense.Cents != 4000 {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestSumByDateAscendingOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "frank", "h")
	salary := categoryByName(t, repo, "Salary")
	addTx(t, repo, u.ID, salary, 100, core.NewDate(2024, 6, 2), "")
	addTx(t, repo, u.ID, salary, 200, core.NewDate(2024, 6, 1), "")

	totals, err := repo.SumByDate(ctx, u.ID)
	if err != nil {
		t.Fatalf("sum by date: %v", err)
	}
	if len(totals) != 2 || totals[0].Date.String() != "2024-06-01" {
		t.Fatalf("expected ascending dates, got %+v", totals)
	}
}

func TestSumByCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "gina", "h")
	rent := categoryByName(t, repo, "Rent")
	groceries := categoryByName(t, repo, "Groceries")
	day := core.NewDate(2024, 7, 1)

	addTx(t, repo, u.ID, rent, 90000, day, "")
	addTx(t, repo, u.ID, groceries, 3000, day, "")
	addTx(t, repo, u.ID, groceries, 2000, day, "")

	totals, err := repo.SumByCategory(ctx, u.ID, core.Expense)
	if err != nil {
		t.Fatalf("sum by category: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("expected two categories, got %+v", totals)
	}
	if totals[0].Name != "Rent" || totals[0].Total.Cents != 90000 {
		t.Fatalf("largest category first, got %+v", totals[0])
	}
	if totals[1].Name != "Groceries" || totals[1].Total.Cents != 5000 {
		t.Fatalf("groceries not summed: %+v", totals[1])
	}

	// No income recorded: empty aggregate, not an error.
	income, err := repo.SumByCategory(ctx, u.ID, core.Income)
	if err != nil || len(income) != 0 {
		t.Fatalf("expected empty income aggregate, got %+v err=%v", income, err)
	}
}

func TestRecomputeBalanceRepairsDrift(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "henry", "h")
	salary := categoryByName(t, repo, "Salary")
	rent := categoryByName(t, repo, "Rent")
	day := core.NewDate(2024, 8, 1)
	addTx(t, repo, u.ID, salary, 250000, day, "")
	addTx(t, repo, u.ID, rent, 80000, day, "")

	// Simulate drift in the cached total.
	if _, err := repo.db.ExecContext(ctx, `UPDATE users SET money = 1 WHERE id = ?`, u.ID); err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	got, err := repo.RecomputeBalance(ctx, u.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got != 170000 {
		t.Fatalf("recomputed balance = %d, want 170000", got)
	}
	if b := balance(t, repo, u.ID); b != 170000 {
		t.Fatalf("stored balance = %d, want 170000", b)
	}
}

func TestSeedCategoriesIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	before, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(before) == 0 {
		t.Fatal("migration seeded no categories")
	}

	for i := 0; i < 2; i++ {
		if err := repo.SeedCategories(ctx); err != nil {
			t.Fatalf("seed #%d: %v", i+1, err)
		}
	}

	after, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("seeding not idempotent: %d -> %d categories", len(before), len(after))
	}
}

func TestSetBudget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, _ := repo.CreateUser(ctx, "iris", "h")
	ceiling := int64(150000)
	if err := repo.SetBudget(ctx, u.ID, &ceiling); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := repo.GetUserByID(ctx, u.ID)
	if got.Budget == nil || got.Budget.Cents != 150000 {
		t.Fatalf("budget not stored: %+v", got.Budget)
	}

	if err := repo.SetBudget(ctx, u.ID, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = repo.GetUserByID(ctx, u.ID)
	if got.Budget != nil {
		t.Fatalf("budget not cleared: %+v", got.Budget)
	}

	if err := repo.SetBudget(ctx, 9999, &ceiling); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}
}
