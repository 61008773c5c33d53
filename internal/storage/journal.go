package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nota/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states of a journal entry.
const (
	StatusPending = "pending"
	StatusRouting = "routing"
	StatusSynced  = "synced"
	StatusError   = "error"
)

// Sources of a journal entry.
const (
	SourceScan   = "scan"
	SourceManual = "manual"
	SourceCLI    = "cli"
)

// DefaultMaxAttempts is how many routing failures an entry survives before it is parked.
const DefaultMaxAttempts = 5

// claimTimeFormat is fixed width so claimed_at compares as text.
const claimTimeFormat = "2006-01-02T15:04:05.000000000Z"

var ErrEntryNotFound = errors.New("journal entry not found")

// Entry is a receipt waiting for, or done with, asynchronous routing.
type Entry struct {
	ID            int64
	Source        string
	Receipt       core.Receipt
	TabTitle      string
	RecordedAt    time.Time
	Status        string
	Attempts      int
	LastError     string
	SyncedAt      time.Time
	ArchiveObject string
}

// Journal is the SQLite outbox holding receipts for nota-worker.
type Journal struct {
	db          *sql.DB
	queries     *Queries
	maxAttempts int
	now         func() time.Time
}

func NewJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{
		db:          db,
		queries:     New(db),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Enqueue stores rec as pending. tabTitle is the title the router is expected
// to choose for rec at recordedAt.
func (j *Journal) Enqueue(ctx context.Context, source string, rec core.Receipt, tabTitle string, recordedAt time.Time, archiveObject string) (Entry, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("encode receipt: %w", err)
	}
	row, err := j.queries.InsertJournal(ctx, InsertJournalParams{
		Source:        source,
		Store:         rec.Store,
		ReceiptDate:   strings.TrimSpace(rec.Date),
		ItemCount:     int64(len(rec.Items)),
		Payload:       string(payload),
		TabTitle:      tabTitle,
		RecordedAt:    recordedAt.UTC().Format(time.RFC3339Nano),
		ArchiveObject: archiveObject,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}

	slog.InfoContext(ctx, "Receipt journaled",
		"journal_id", row.ID,
		"source", source,
		"store", rec.Store,
		"items", row.ItemCount,
		"tab", tabTitle)
	return toEntry(row)
}

func (j *Journal) Get(ctx context.Context, id int64) (Entry, error) {
	row, err := j.queries.GetJournal(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("id %d: %w", id, ErrEntryNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get journal entry: %w", err)
	}
	return toEntry(row)
}

// Pending returns up to limit pending entries, oldest first.
func (j *Journal) Pending(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.queries.ListPending(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := toEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Claim takes a pending entry for routing. It reports false when the entry
// is already claimed, synced or parked.
func (j *Journal) Claim(ctx context.Context, id int64) (bool, error) {
	n, err := j.queries.ClaimJournal(ctx, id, j.now().UTC().Format(claimTimeFormat))
	if err != nil {
		return false, fmt.Errorf("claim journal entry: %w", err)
	}
	return n == 1, nil
}

// RequeueStale returns entries claimed before cutoff to pending. A claim
// that old belongs to a router that stopped before finishing.
func (j *Journal) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := j.queries.RequeueStale(ctx, cutoff.UTC().Format(claimTimeFormat))
	if err != nil {
		return 0, fmt.Errorf("requeue stale claims: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Requeued stale journal claims", "count", n)
	}
	return n, nil
}

func (j *Journal) MarkSynced(ctx context.Context, id int64, tabTitle string) error {
	n, err := j.queries.MarkSynced(ctx, id, tabTitle, j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark entry synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrEntryNotFound)
	}
	slog.InfoContext(ctx, "Journal entry synced", "journal_id", id, "tab", tabTitle)
	return nil
}

// MarkFailed records a routing failure. After the configured number of
// attempts the entry leaves the pending set.
func (j *Journal) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	n, err := j.queries.MarkFailed(ctx, id, int64(j.maxAttempts), msg)
	if err != nil {
		return fmt.Errorf("mark entry failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrEntryNotFound)
	}
	slog.WarnContext(ctx, "Journal entry routing failed", "journal_id", id, "error", msg)
	return nil
}

// Stats counts entries per sync status.
func (j *Journal) Stats(ctx context.Context) (map[string]int64, error) {
	counts, err := j.queries.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count journal entries: %w", err)
	}
	return counts, nil
}

func toEntry(r JournalRow) (Entry, error) {
	var rec core.Receipt
	if err := json.Unmarshal([]byte(r.Payload), &rec); err != nil {
		return Entry{}, fmt.Errorf("decode journal payload %d: %w", r.ID, err)
	}
	recordedAt, err := time.Parse(time.RFC3339Nano, r.RecordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("decode recorded_at of %d: %w", r.ID, err)
	}
	e := Entry{
		ID:            r.ID,
		Source:        r.Source,
		Receipt:       rec,
		TabTitle:      r.TabTitle,
		RecordedAt:    recordedAt,
		Status:        r.SyncStatus,
		Attempts:      int(r.Attempts),
		LastError:     r.LastError.String,
		ArchiveObject: r.ArchiveObject,
	}
	if r.SyncedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, r.SyncedAt.String); err == nil {
			e.SyncedAt = t
		}
	}
	return e, nil
}
