package core

// CategoryTotal is an amount aggregated by category name.
type CategoryTotal struct {
	Name  string
	Total Money
}

// DateTotal sums a single day's income and expense separately.
type DateTotal struct {
	Date    Date
	Income  Money
	Expense Money
}
