package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the single persistence layer for users, categories and
// the transaction ledger. Every ledger mutation adjusts the owner's cached
// balance inside the same database transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

// CreateUser stores a new user with a zero balance. Returns
// core.ErrDuplicateUsername when the username is already taken; the existing
// record is left untouched in that case.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE username = ?`, username).Scan(&exists)
	if err != nil {
		return core.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists > 0 {
		return core.User{}, core.ErrDuplicateUsername
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, money) VALUES (?, ?, 0)`,
		username, passwordHash)
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "id", id, "username", username)
	return core.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, money, budget FROM users WHERE username = ?`,
		username))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, money, budget FROM users WHERE id = ?`,
		id))
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var budget sql.NullInt64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Money.Cents, &budget)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	if budget.Valid {
		u.Budget = &core.Money{Cents: budget.Int64}
	}
	return u, nil
}

// SetBudget updates the optional spending ceiling. A nil budget clears it.
func (r *SQLiteRepository) SetBudget(ctx context.Context, userID int64, budgetCents *int64) error {
	var v any
	if budgetCents != nil {
		v = *budgetCents
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET budget = ? WHERE id = ?`, v, userID)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// RecomputeBalance re-derives the cached balance from the ledger and stores
// it, returning the corrected value. Reconciliation safeguard: the cached
// total is otherwise only adjusted incrementally.
func (r *SQLiteRepository) RecomputeBalance(ctx context.Context, userID int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin recompute: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN transaction_type = 'income' THEN amount ELSE -amount END), 0)
		FROM transactions WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET money = ? WHERE id = ?`, balance, userID)
	if err != nil {
		return 0, fmt.Errorf("store balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, core.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit recompute: %w", err)
	}

	slog.InfoContext(ctx, "Balance recomputed", "user_id", userID, "balance_cents", balance)
	return balance, nil
}

// ListUserIDs returns every user id, for reconciliation sweeps.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- categories ---

var defaultCategories = []core.Category{
	{Name: "Salary", Type: core.Income},
	{Name: "Bonus", Type: core.Income},
	{Name: "Interest", Type: core.Income},
	{Name: "Other Income", Type: core.Income},
	{Name: "Rent", Type: core.Expense},
	{Name: "Groceries", Type: core.Expense},
	{Name: "Transport", Type: core.Expense},
	{Name: "Utilities", Type: core.Expense},
	{Name: "Entertainment", Type: core.Expense},
	{Name: "Health", Type: core.Expense},
	{Name: "Other Expense", Type: core.Expense},
}

// SeedCategories ensures the fixed category list exists. Idempotent: existing
// rows are left alone, so it is safe to call on every startup. The same list
// ships in the seed migration; this covers databases restored from older dumps.
func (r *SQLiteRepository) SeedCategories(ctx context.Context) error {
	for _, c := range defaultCategories {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (name, type) VALUES (?, ?)`,
			c.Name, string(c.Type))
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	var typ string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, type FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

// --- transactions ---

// AddTransaction persists a transaction and applies its signed delta to the
// owner's cached balance in a single commit.
func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin add: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, category_id, transaction_type, amount, date, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, string(t.Type), t.Amount.Cents, t.Date.String(), t.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}

	if err := applyDelta(ctx, tx, t.UserID, t.SignedDelta()); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit add: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"id", t.ID,
		"user_id", t.UserID,
		"type", string(t.Type),
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())
	return t, nil
}

// applyDelta shifts the cached balance; must run inside the same tx as the
// triggering ledger mutation.
func applyDelta(ctx context.Context, tx *sql.Tx, userID, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET money = money + ? WHERE id = ?`, delta, userID)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var t core.Transaction
	var typ, date string
	err := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.category_id, c.name, t.transaction_type, t.amount, t.date, t.description
		FROM transactions t JOIN categories c ON c.id = t.category_id
		WHERE t.id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &typ, &t.Amount.Cents, &date, &t.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	t.Type = core.CategoryType(typ)
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	return t, nil
}

// UpdateTransaction changes amount, description and date of a transaction
// owned by userID. Type and category are immutable. The balance is corrected
// by the delta difference in the same commit, so an amount edit can never
// skew the cached total.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id, userID, amountCents int64, description string, date core.Date) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldAmount int64
	var typ string
	err = tx.QueryRowContext(ctx,
		`SELECT amount, transaction_type FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&oldAmount, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transactions SET amount = ?, description = ?, date = ? WHERE id = ?`,
		amountCents, description, date.String(), id)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	ctype := core.CategoryType(typ)
	delta := core.SignedDeltaFor(amountCents, ctype) - core.SignedDeltaFor(oldAmount, ctype)
	if delta != 0 {
		if err := applyDelta(ctx, tx, userID, delta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"id", id, "user_id", userID, "amount_cents", amountCents, "balance_delta", delta)
	return nil
}

// DeleteTransaction removes a transaction and reverses its balance delta in
// one commit. The ownership check sits in the lookup: a transaction belonging
// to another user is reported as not deleted with no error and no mutation.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id, userID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var amount int64
	var typ string
	err = tx.QueryRowContext(ctx,
		`SELECT amount, transaction_type FROM transactions WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&amount, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}

	if err := applyDelta(ctx, tx, userID, -core.SignedDeltaFor(amount, core.CategoryType(typ))); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return true, nil
}

// ListTransactions returns a user's transactions most-recent-id-first, joined
// with their category name. limit <= 0 means no limit.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	q := `
		SELECT t.id, t.user_id, t.category_id, c.name, t.transaction_type, t.amount, t.date, t.description
		FROM transactions t JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ?
		ORDER BY t.id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var typ, date string
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &typ, &t.Amount.Cents, &date, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.CategoryType(typ)
		t.Date, err = core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumByCategory groups a user's transactions of one type by category,
// largest total first. Empty ledger yields an empty slice.
func (r *SQLiteRepository) SumByCategory(ctx context.Context, userID int64, t core.CategoryType) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.name, SUM(t.amount) AS total
		FROM transactions t JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.transaction_type = ?
		GROUP BY c.name
		ORDER BY total DESC`, userID, string(t))
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	totals := []core.CategoryTotal{}
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Name, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// SumByDate groups a user's transactions by date in ascending order, summing
// income and expense separately per day. Empty ledger yields an empty slice.
func (r *SQLiteRepository) SumByDate(ctx context.Context, userID int64) ([]core.DateTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date,
		       COALESCE(SUM(CASE WHEN transaction_type = 'income' THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN transaction_type = 'expense' THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE user_id = ?
		GROUP BY date
		ORDER BY date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sum by date: %w", err)
	}
	defer rows.Close()

	totals := []core.DateTotal{}
	for rows.Next() {
		var dt core.DateTotal
		var date string
		if err := rows.Scan(&date, &dt.Income.Cents, &dt.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan date total: %w", err)
		}
		var err error
		dt.Date, err = core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		totals = append(totals, dt)
	}
	return totals, rows.Err()
}
