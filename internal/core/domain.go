package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  CategoryType = "income"
	Expense CategoryType = "expense"
)

type (
	// CategoryType tags a category (and the transactions recorded against it)
	// as either income or expense.
	CategoryType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// User is an account holder. Money is the cached running balance; it is
	// mutated only in lockstep with ledger changes. Budget is an optional
	// spending ceiling, nil when unset.
	User struct {
		ID           int64
		Username     string
		PasswordHash string
		Money        Money
		Budget       *Money
	}

	// Category is seeded at migration time and immutable afterwards.
	Category struct {
		ID   int64
		Name string
		Type CategoryType
	}

	// Transaction is a single monetary movement owned by exactly one user.
	// Type and CategoryID are fixed at creation; only amount, description
	// and date may change on edit.
	Transaction struct {
		ID           int64
		UserID       int64
		CategoryID   int64
		CategoryName string
		Type         CategoryType
		Amount       Money
		Date         Date
		Description  string
	}
)

var (
	ErrDuplicateUsername    = errors.New("username already taken")
	ErrPasswordMismatch     = errors.New("password and confirmation do not match")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrCategoryTypeMismatch = errors.New("category type does not match transaction type")
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrEmptyUsername        = errors.New("empty username")
	ErrEmptyPassword        = errors.New("empty password")
)

// ParseCategoryType validates a raw form value against the two known types.
func ParseCategoryType(s string) (CategoryType, error) {
	switch CategoryType(strings.TrimSpace(s)) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	default:
		return "", ErrInvalidType
	}
}

func (t CategoryType) Valid() bool {
	return t == Income || t == Expense
}

const dateLayout = "2006-01-02"

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: parsed}, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// SignedDelta is the contribution of this transaction to the cached balance:
// +amount for income, -amount for expense.
func (t Transaction) SignedDelta() int64 {
	return SignedDeltaFor(t.Amount.Cents, t.Type)
}

// SignedDeltaFor computes the balance contribution of an amount of the given
// type without materializing a Transaction.
func SignedDeltaFor(amountCents int64, t CategoryType) int64 {
	if t == Expense {
		return -amountCents
	}
	return amountCents
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
