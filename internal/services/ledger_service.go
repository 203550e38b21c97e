package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// EventPublisher publishes ledger mutation events for the reconciliation
// worker. *amqp.Client satisfies it; a nil publisher disables events.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, transactionID, userID int64, action string) error
}

// LedgerService orchestrates transaction mutations: domain validation,
// category/type matching, the atomic persist+balance step, event publishing
// and report-cache invalidation.
type LedgerService struct {
	repo    *storage.SQLiteRepository
	events  EventPublisher
	reports *ReportService
}

// NewLedgerService wires the ledger. events and reports may be nil.
func NewLedgerService(repo *storage.SQLiteRepository, events EventPublisher, reports *ReportService) *LedgerService {
	return &LedgerService{repo: repo, events: events, reports: reports}
}

// Add records a transaction. The category's stored type must equal the
// transaction's type (core.ErrCategoryTypeMismatch otherwise) and nothing is
// persisted on any validation failure. On success the owner's cached balance
// has already moved by the signed delta, in the same commit.
func (s *LedgerService) Add(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	category, err := s.repo.GetCategory(ctx, t.CategoryID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("look up category: %w", err)
	}
	if category.Type != t.Type {
		return core.Transaction{}, core.ErrCategoryTypeMismatch
	}

	saved, err := s.repo.AddTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, saved.ID, saved.UserID, amqp.ActionAdded)
	s.invalidate(saved.UserID)
	return saved, nil
}

// Get fetches a transaction for display, scoped to its owner. A transaction
// belonging to someone else is reported as core.ErrNotFound.
func (s *LedgerService) Get(ctx context.Context, id, userID int64) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

// Edit updates amount, description and date. The balance is corrected by the
// amount difference in the same commit.
func (s *LedgerService) Edit(ctx context.Context, id, userID, amountCents int64, description string, date core.Date) error {
	if amountCents <= 0 {
		return core.ErrInvalidAmount
	}
	if err := date.Validate(); err != nil {
		return err
	}

	if err := s.repo.UpdateTransaction(ctx, id, userID, amountCents, description, date); err != nil {
		return err
	}

	s.publish(ctx, id, userID, amqp.ActionEdited)
	s.invalidate(userID)
	return nil
}

// Delete removes a transaction owned by userID and reverses its balance
// delta. Deleting a transaction that does not belong to the user is a silent
// no-op: nothing changes and no error surfaces, only a warning is logged.
func (s *LedgerService) Delete(ctx context.Context, id, userID int64) error {
	deleted, err := s.repo.DeleteTransaction(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if !deleted {
		slog.WarnContext(ctx, "Delete ignored: transaction not owned by requester",
			"transaction_id", id, "user_id", userID)
		return nil
	}

	s.publish(ctx, id, userID, amqp.ActionDeleted)
	s.invalidate(userID)
	return nil
}

// Recent returns the user's latest transactions, most-recent-id-first.
func (s *LedgerService) Recent(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit)
}

// Recompute re-derives the cached balance from the ledger.
func (s *LedgerService) Recompute(ctx context.Context, userID int64) (int64, error) {
	return s.repo.RecomputeBalance(ctx, userID)
}

func (s *LedgerService) publish(ctx context.Context, transactionID, userID int64, action string) {
	if s.events == nil {
		return
	}
	// Events are a reconciliation aid; a failed publish never fails the request.
	if err := s.events.PublishLedgerEvent(ctx, transactionID, userID, action); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", transactionID, "user_id", userID, "action", action, "error", err)
	}
}

func (s *LedgerService) invalidate(userID int64) {
	if s.reports != nil {
		s.reports.Invalidate(userID)
	}
}
