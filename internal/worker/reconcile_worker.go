// Package worker implements the balance reconciliation worker. The cached
// balance is adjusted in the same commit as every ledger mutation, so it
// should never drift; the worker re-derives it from the ledger anyway, as a
// safeguard against operator edits or restored backups.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

type ReconcileWorker struct {
	storage       *storage.SQLiteRepository
	sweepInterval time.Duration
}

func NewReconcileWorker(storage *storage.SQLiteRepository, sweepInterval time.Duration) *ReconcileWorker {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return &ReconcileWorker{
		storage:       storage,
		sweepInterval: sweepInterval,
	}
}

// HandleLedgerEvent recomputes the balance of the user named in a ledger
// event. Events for users that no longer exist are acknowledged and dropped.
func (w *ReconcileWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	balance, err := w.storage.RecomputeBalance(ctx, msg.UserID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Ledger event for unknown user, dropping",
			"user_id", msg.UserID, "transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recompute balance for user %d: %w", msg.UserID, err)
	}

	slog.InfoContext(ctx, "Reconciled balance from ledger event",
		"user_id", msg.UserID,
		"action", msg.Action,
		"balance_cents", balance)
	return nil
}

// RunSweep recomputes every user's balance once. Individual failures are
// logged and do not stop the sweep.
func (w *ReconcileWorker) RunSweep(ctx context.Context) error {
	ids, err := w.storage.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users for sweep: %w", err)
	}

	failed := 0
	for _, id := range ids {
		if _, err := w.storage.RecomputeBalance(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Sweep recompute failed", "user_id", id, "error", err)
			failed++
		}
	}

	slog.InfoContext(ctx, "Reconciliation sweep completed",
		"users", len(ids), "failed", failed)
	return nil
}

// Start runs periodic sweeps until ctx is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunSweep(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
			}
		}
	}
}
