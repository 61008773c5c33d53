package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nota/internal/core"
	"nota/internal/ledger"
	"nota/internal/storage"
)

// Recorder puts a finished receipt into the ledger and returns the tab title
// it went, or will go, to.
type Recorder interface {
	Record(ctx context.Context, source string, rec core.Receipt, archiveObject string) (string, error)
}

// LedgerRecorder appends synchronously through the router.
type LedgerRecorder struct {
	router *ledger.Router
}

func NewLedgerRecorder(router *ledger.Router) *LedgerRecorder {
	return &LedgerRecorder{router: router}
}

func (r *LedgerRecorder) Record(ctx context.Context, _ string, rec core.Receipt, _ string) (string, error) {
	return r.router.Append(ctx, rec)
}

// Publisher announces a journal entry to the worker.
type Publisher interface {
	PublishReceiptRoute(ctx context.Context, journalID int64, tabTitle string) error
}

// Enqueuer is the write side of the outbox journal.
type Enqueuer interface {
	Enqueue(ctx context.Context, source string, rec core.Receipt, tabTitle string, recordedAt time.Time, archiveObject string) (storage.Entry, error)
}

// OutboxRecorder journals the receipt in SQLite and publishes a routing
// message. The worker later appends it with the same recording time, so the
// returned title is the one the router will pick.
type OutboxRecorder struct {
	journal   Enqueuer
	publisher Publisher
	now       func() time.Time
}

func NewOutboxRecorder(journal Enqueuer, publisher Publisher) *OutboxRecorder {
	return &OutboxRecorder{journal: journal, publisher: publisher, now: time.Now}
}

func (r *OutboxRecorder) Record(ctx context.Context, source string, rec core.Receipt, archiveObject string) (string, error) {
	now := r.now()
	title := core.TabTitleFor(rec.Date, now)

	entry, err := r.journal.Enqueue(ctx, source, rec, title, now, archiveObject)
	if err != nil {
		return "", fmt.Errorf("save receipt: %w", err)
	}

	if r.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, receipt left for the pending sweep", "journal_id", entry.ID)
		return title, nil
	}
	if err := r.publisher.PublishReceiptRoute(ctx, entry.ID, title); err != nil {
		// the receipt is journaled; the worker's sweep picks it up
		slog.ErrorContext(ctx, "Failed to publish route message", "journal_id", entry.ID, "error", err)
	}
	return title, nil
}
