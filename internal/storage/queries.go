package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// JournalRow mirrors one receipt_journal row.
type JournalRow struct {
	ID            int64
	Source        string
	Store         string
	ReceiptDate   string
	ItemCount     int64
	Payload       string
	TabTitle      string
	RecordedAt    string
	SyncStatus    string
	Attempts      int64
	LastError     sql.NullString
	SyncedAt      sql.NullString
	ArchiveObject string
}

const journalColumns = `id, source, store, receipt_date, item_count, payload, tab_title,
	recorded_at, sync_status, attempts, last_error, synced_at, archive_object`

func scanJournalRow(s interface{ Scan(...any) error }) (JournalRow, error) {
	var r JournalRow
	err := s.Scan(&r.ID, &r.Source, &r.Store, &r.ReceiptDate, &r.ItemCount, &r.Payload, &r.TabTitle,
		&r.RecordedAt, &r.SyncStatus, &r.Attempts, &r.LastError, &r.SyncedAt, &r.ArchiveObject)
	return r, err
}

type InsertJournalParams struct {
	Source        string
	Store         string
	ReceiptDate   string
	ItemCount     int64
	Payload       string
	TabTitle      string
	RecordedAt    string
	ArchiveObject string
}

const insertJournal = `INSERT INTO receipt_journal
	(source, store, receipt_date, item_count, payload, tab_title, recorded_at, archive_object)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + journalColumns

func (q *Queries) InsertJournal(ctx context.Context, arg InsertJournalParams) (JournalRow, error) {
	row := q.db.QueryRowContext(ctx, insertJournal,
		arg.Source, arg.Store, arg.ReceiptDate, arg.ItemCount, arg.Payload, arg.TabTitle, arg.RecordedAt, arg.ArchiveObject)
	return scanJournalRow(row)
}

const getJournal = `SELECT ` + journalColumns + ` FROM receipt_journal WHERE id = ?`

func (q *Queries) GetJournal(ctx context.Context, id int64) (JournalRow, error) {
	return scanJournalRow(q.db.QueryRowContext(ctx, getJournal, id))
}

const listPending = `SELECT ` + journalColumns + ` FROM receipt_journal
WHERE sync_status = 'pending'
ORDER BY id
LIMIT ?`

func (q *Queries) ListPending(ctx context.Context, limit int64) ([]JournalRow, error) {
	rows, err := q.db.QueryContext(ctx, listPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JournalRow
	for rows.Next() {
		r, err := scanJournalRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const claimJournal = `UPDATE receipt_journal
SET sync_status = 'routing', claimed_at = ?
WHERE id = ? AND sync_status = 'pending'`

// ClaimJournal moves a pending row to routing. Zero rows affected means
// another router holds it or it is no longer pending.
func (q *Queries) ClaimJournal(ctx context.Context, id int64, claimedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimJournal, claimedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const requeueStale = `UPDATE receipt_journal
SET sync_status = 'pending', claimed_at = NULL
WHERE sync_status = 'routing' AND claimed_at < ?`

func (q *Queries) RequeueStale(ctx context.Context, claimedBefore string) (int64, error) {
	res, err := q.db.ExecContext(ctx, requeueStale, claimedBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markSynced = `UPDATE receipt_journal
SET sync_status = 'synced', attempts = attempts + 1, last_error = NULL, synced_at = ?, tab_title = ?, claimed_at = NULL
WHERE id = ?`

func (q *Queries) MarkSynced(ctx context.Context, id int64, tabTitle, syncedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markSynced, syncedAt, tabTitle, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// The row stays pending until maxAttempts failures, then moves to error.
const markFailed = `UPDATE receipt_journal
SET sync_status = CASE WHEN attempts + 1 >= ? THEN 'error' ELSE 'pending' END,
    attempts = attempts + 1,
    last_error = ?,
    claimed_at = NULL
WHERE id = ? AND sync_status != 'synced'`

func (q *Queries) MarkFailed(ctx context.Context, id int64, maxAttempts int64, lastError string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markFailed, maxAttempts, lastError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countByStatus = `SELECT sync_status, COUNT(*) FROM receipt_journal GROUP BY sync_status`

func (q *Queries) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
