package http

import (
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

type transactionRow struct {
	ID          int64
	Date        string
	Category    string
	Type        string
	Amount      string
	Description string
}

type dashboardPage struct {
	Username   string
	Balance    string
	Negative   bool
	Budget     string
	HasBudget  bool
	Spent      string
	OverBudget bool
	Rows       []transactionRow
	Flash      string
	Error      string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	transactions, err := s.ledger.Recent(r.Context(), user.ID, 50)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list transactions", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page := dashboardPage{
		Username: user.Username,
		Balance:  euro(user.Money.Cents),
		Negative: user.Money.Cents < 0,
		Flash:    s.sessions.PopString(r.Context(), "flash"),
	}

	if user.Budget != nil {
		page.HasBudget = true
		page.Budget = euro(user.Budget.Cents)

		spent, err := s.spentTotal(r, user.ID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to total expenses", "user_id", user.ID, "error", err)
		} else {
			page.Spent = euro(spent)
			page.OverBudget = spent > user.Budget.Cents
		}
	}

	for _, t := range transactions {
		amount := euro(t.SignedDelta())
		page.Rows = append(page.Rows, transactionRow{
			ID:          t.ID,
			Date:        t.Date.String(),
			Category:    t.CategoryName,
			Type:        string(t.Type),
			Amount:      amount,
			Description: t.Description,
		})
	}

	s.render(w, r, "index.html", page)
}

// spentTotal sums all expense transactions for the budget indicator.
func (s *Server) spentTotal(r *http.Request, userID int64) (int64, error) {
	totals, err := s.reports.ByCategory(r.Context(), userID, core.Expense)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, ct := range totals {
		sum += ct.Total.Cents
	}
	return sum, nil
}

func (s *Server) handleBudgetSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	raw := sanitizeInput(r.Form.Get("budget"))
	if raw == "" {
		// Empty input clears the budget.
		if err := s.repo.SetBudget(r.Context(), user.ID, nil); err != nil {
			slog.ErrorContext(r.Context(), "Failed to clear budget", "user_id", user.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.sessions.Put(r.Context(), "flash", "Budget cleared")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cents, err := core.ParseAmount(raw)
	if err != nil {
		s.sessions.Put(r.Context(), "flash", "Invalid budget amount")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := s.repo.SetBudget(r.Context(), user.ID, &cents); err != nil {
		slog.ErrorContext(r.Context(), "Failed to set budget", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.sessions.Put(r.Context(), "flash", "Budget updated")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
