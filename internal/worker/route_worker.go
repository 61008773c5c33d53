// Package worker routes journaled receipts into the ledger workbook.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nota/internal/amqp"
	"nota/internal/core"
	"nota/internal/storage"
)

// Journal is the outbox the worker drains.
type Journal interface {
	Get(ctx context.Context, id int64) (storage.Entry, error)
	Pending(ctx context.Context, limit int) ([]storage.Entry, error)
	Claim(ctx context.Context, id int64) (bool, error)
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	MarkSynced(ctx context.Context, id int64, tabTitle string) error
	MarkFailed(ctx context.Context, id int64, cause error) error
}

// Appender writes a record as of a recording time; *ledger.Router implements it.
type Appender interface {
	AppendAt(ctx context.Context, rec core.Receipt, now time.Time) (string, error)
}

// claimTimeout is how long a claimed entry may stay in routing before the
// sweep hands it out again.
const claimTimeout = 10 * time.Minute

type RouteWorker struct {
	journal   Journal
	ledger    Appender
	batchSize int
	logger    *slog.Logger
}

func NewRouteWorker(journal Journal, ledger Appender, batchSize int, logger *slog.Logger) *RouteWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteWorker{journal: journal, ledger: ledger, batchSize: batchSize, logger: logger}
}

// HandleRouteMessage routes the journal entry a message points at. Routing
// failures are recorded on the entry and left to the pending sweep, so the
// message is acknowledged; only journal access errors are returned.
func (w *RouteWorker) HandleRouteMessage(ctx context.Context, msg *amqp.ReceiptRouteMessage) error {
	entry, err := w.journal.Get(ctx, msg.JournalID)
	if errors.Is(err, storage.ErrEntryNotFound) {
		w.logger.WarnContext(ctx, "Route message for unknown journal entry", "journal_id", msg.JournalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load journal entry: %w", err)
	}
	_, err = w.route(ctx, entry)
	return err
}

// ProcessPending routes up to one batch of pending entries and reports how
// many reached the ledger. It covers messages lost by the broker.
func (w *RouteWorker) ProcessPending(ctx context.Context) (int, error) {
	if _, err := w.journal.RequeueStale(ctx, time.Now().Add(-claimTimeout)); err != nil {
		return 0, err
	}
	entries, err := w.journal.Pending(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Processing pending receipts", "count", len(entries))

	routed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return routed, ctx.Err()
		}
		ok, err := w.route(ctx, e)
		if err != nil {
			return routed, err
		}
		if ok {
			routed++
		}
	}
	return routed, nil
}

// Run sweeps pending entries every interval until ctx is done.
func (w *RouteWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Startup pending sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending sweep failed", "error", err)
			}
		}
	}
}

// route claims and appends one entry. It returns false without error when
// another router holds the entry, or when routing failed and the failure was
// recorded.
func (w *RouteWorker) route(ctx context.Context, e storage.Entry) (bool, error) {
	claimed, err := w.journal.Claim(ctx, e.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		w.logger.DebugContext(ctx, "Journal entry not pending", "journal_id", e.ID, "status", e.Status)
		return false, nil
	}

	// journal times are UTC; Input Time is local
	title, err := w.ledger.AppendAt(ctx, e.Receipt, e.RecordedAt.In(time.Local))
	if err != nil {
		w.logger.ErrorContext(ctx, "Routing receipt failed", "journal_id", e.ID, "store", e.Receipt.Store, "error", err)
		if merr := w.journal.MarkFailed(ctx, e.ID, err); merr != nil {
			return false, fmt.Errorf("record routing failure: %w", merr)
		}
		return false, nil
	}
	if title != e.TabTitle && e.TabTitle != "" {
		w.logger.WarnContext(ctx, "Receipt routed to a different tab than announced",
			"journal_id", e.ID, "announced", e.TabTitle, "tab", title)
	}
	if err := w.journal.MarkSynced(ctx, e.ID, title); err != nil {
		return false, fmt.Errorf("mark synced: %w", err)
	}
	return true, nil
}
