package http

import (
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

func (s *Server) handleGraphs(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	s.render(w, r, "graphs.html", struct {
		Username string
	}{Username: user.Username})
}

// categorySeries feeds the pie/bar charts: one label and one value in euros
// per category.
type categorySeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// dateSeries feeds the timeline chart: per-day income and expense totals in
// ascending date order.
type dateSeries struct {
	Labels  []string  `json:"labels"`
	Income  []float64 `json:"income"`
	Expense []float64 `json:"expense"`
}

// handleGraphData serves chart aggregates as JSON.
// ?kind=category&type=income|expense groups one transaction type by
// category; ?kind=date returns per-day totals for both types.
func (s *Server) handleGraphData(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	switch r.URL.Query().Get("kind") {
	case "category":
		t, err := core.ParseCategoryType(r.URL.Query().Get("type"))
		if err != nil {
			http.Error(w, "type must be income or expense", http.StatusBadRequest)
			return
		}

		totals, err := s.reports.ByCategory(r.Context(), user.ID, t)
		if errors.Is(err, core.ErrInvalidType) {
			http.Error(w, "type must be income or expense", http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "Category aggregate failed", "user_id", user.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		series := categorySeries{Labels: []string{}, Values: []float64{}}
		for _, ct := range totals {
			series.Labels = append(series.Labels, ct.Name)
			series.Values = append(series.Values, float64(ct.Total.Cents)/100)
		}
		writeJSON(w, http.StatusOK, series)

	case "date":
		totals, err := s.reports.ByDate(r.Context(), user.ID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Date aggregate failed", "user_id", user.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		series := dateSeries{Labels: []string{}, Income: []float64{}, Expense: []float64{}}
		for _, dt := range totals {
			series.Labels = append(series.Labels, dt.Date.String())
			series.Income = append(series.Income, float64(dt.Income.Cents)/100)
			series.Expense = append(series.Expense, float64(dt.Expense.Cents)/100)
		}
		writeJSON(w, http.StatusOK, series)

	default:
		http.Error(w, "kind must be category or date", http.StatusBadRequest)
	}
}
