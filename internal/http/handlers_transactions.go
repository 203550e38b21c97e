package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bilancio/internal/core"
)

type transactionForm struct {
	Error       string
	Categories  []core.Category
	Today       string
	Type        string
	CategoryID  int64
	Amount      string
	Date        string
	Description string
}

func (s *Server) handleAddPage(w http.ResponseWriter, r *http.Request) {
	categories, err := s.repo.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list categories", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "add.html", transactionForm{
		Categories: categories,
		Today:      time.Now().Format("2006-01-02"),
		Type:       string(core.Expense),
	})
}

func (s *Server) handleAddSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := transactionForm{
		Today:       time.Now().Format("2006-01-02"),
		Type:        sanitizeInput(r.Form.Get("type")),
		Amount:      sanitizeInput(r.Form.Get("amount")),
		Date:        sanitizeInput(r.Form.Get("date")),
		Description: sanitizeInput(r.Form.Get("description")),
	}

	fail := func(status int, msg string) {
		form.Error = msg
		categories, err := s.repo.ListCategories(r.Context())
		if err == nil {
			form.Categories = categories
		}
		s.renderStatus(w, r, status, "add.html", form)
	}

	txType, err := core.ParseCategoryType(form.Type)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Choose income or expense")
		return
	}

	categoryID, err := strconv.ParseInt(r.Form.Get("category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		fail(http.StatusUnprocessableEntity, "Choose a category")
		return
	}
	form.CategoryID = categoryID

	cents, err := core.ParseAmount(form.Amount)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Amount must be a positive number")
		return
	}

	date, err := core.ParseDate(form.Date)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Date must be in YYYY-MM-DD form")
		return
	}

	_, err = s.ledger.Add(r.Context(), core.Transaction{
		UserID:      user.ID,
		CategoryID:  categoryID,
		Type:        txType,
		Amount:      core.Money{Cents: cents},
		Date:        date,
		Description: form.Description,
	})
	switch {
	case errors.Is(err, core.ErrCategoryTypeMismatch):
		fail(http.StatusUnprocessableEntity, "That category does not match the transaction type")
		return
	case errors.Is(err, core.ErrNotFound):
		fail(http.StatusUnprocessableEntity, "Unknown category")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to add transaction", "user_id", user.ID, "error", err)
		fail(http.StatusInternalServerError, "Could not save the transaction")
		return
	}

	s.sessions.Put(r.Context(), "flash", "Transaction recorded")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	t, err := s.ledger.Get(r.Context(), id, user.ID)
	if errors.Is(err, core.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load transaction", "transaction_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "edit.html", editPage{
		ID:          t.ID,
		Category:    t.CategoryName,
		Type:        string(t.Type),
		Amount:      core.FormatCents(t.Amount.Cents),
		Date:        t.Date.String(),
		Description: t.Description,
	})
}

type editPage struct {
	Error       string
	ID          int64
	Category    string
	Type        string
	Amount      string
	Date        string
	Description string
}

func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	page := editPage{
		ID:          id,
		Amount:      sanitizeInput(r.Form.Get("amount")),
		Date:        sanitizeInput(r.Form.Get("date")),
		Description: sanitizeInput(r.Form.Get("description")),
	}

	fail := func(status int, msg string) {
		page.Error = msg
		if t, err := s.ledger.Get(r.Context(), id, user.ID); err == nil {
			page.Category = t.CategoryName
			page.Type = string(t.Type)
		}
		s.renderStatus(w, r, status, "edit.html", page)
	}

	cents, err := core.ParseAmount(page.Amount)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Amount must be a positive number")
		return
	}

	date, err := core.ParseDate(page.Date)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "Date must be in YYYY-MM-DD form")
		return
	}

	err = s.ledger.Edit(r.Context(), id, user.ID, cents, page.Description, date)
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to edit transaction", "transaction_id", id, "user_id", user.ID, "error", err)
		fail(http.StatusInternalServerError, "Could not save the changes")
		return
	}

	s.sessions.Put(r.Context(), "flash", "Transaction updated")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := s.ledger.Delete(r.Context(), id, user.ID); err != nil {
		slog.ErrorContext(r.Context(), "Failed to delete transaction", "transaction_id", id, "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.sessions.Put(r.Context(), "flash", "Transaction deleted")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
