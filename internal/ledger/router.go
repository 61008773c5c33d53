// Package ledger places receipt records into monthly tabs of the ledger workbook.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nota/internal/core"
	"nota/internal/sheets"
)

const (
	// TabRows and TabCols are the initial grid size of a new monthly tab.
	TabRows = 100
	TabCols = 20
	// HeaderRange is the range made bold on a new tab.
	HeaderRange = "A1:H1"
)

// Header is the first row of every monthly tab.
var Header = []any{"Date", "Store", "Category", "Item Name", "Quantity", "Unit Price", "Line Total", "Input Time"}

// Error reports which routing step failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "ledger: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Router appends records to a workbook, one tab per month.
type Router struct {
	wb     sheets.Workbook
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex // guards tab creation
}

type Option func(*Router)

// WithClock overrides the time source used for date fallback and Input Time.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRouter(wb sheets.Workbook, opts ...Option) *Router {
	r := &Router{wb: wb, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Workbook returns the workbook records are written to.
func (r *Router) Workbook() sheets.Workbook { return r.wb }

// Append routes rec using the current time for fallback and Input Time.
func (r *Router) Append(ctx context.Context, rec core.Receipt) (string, error) {
	return r.AppendAt(ctx, rec, r.now())
}

// AppendJSON decodes raw as a receipt and routes it at now.
func (r *Router) AppendJSON(ctx context.Context, raw []byte, now time.Time) (string, error) {
	var rec core.Receipt
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", &Error{Op: "decode", Err: err}
	}
	return r.AppendAt(ctx, rec, now)
}

// AppendAt routes rec as if recorded at now. It returns the tab title the
// rows went to. A record without items writes nothing and succeeds.
func (r *Router) AppendAt(ctx context.Context, rec core.Receipt, now time.Time) (title string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Ledger append panicked", "panic", p)
			title, err = "", &Error{Op: "append", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if r.wb == nil {
		return "", &Error{Op: "open", Err: errors.New("workbook not opened")}
	}

	date, parsed := core.ResolveDate(rec.Date, now)
	if !parsed {
		r.logger.DebugContext(ctx, "Record date unusable, using recording time", "date", rec.Date)
	}
	title = core.TabTitle(date)

	ws, err := r.ensureTab(ctx, title)
	if err != nil {
		return "", err
	}

	if len(rec.Items) == 0 {
		return title, nil
	}

	rows := r.rows(ctx, rec, date, now)
	if err := ws.AppendRows(ctx, rows); err != nil {
		return "", &Error{Op: "append rows", Err: err}
	}
	r.logger.InfoContext(ctx, "Receipt appended", "tab", title, "store", rec.Store, "rows", len(rows))
	return title, nil
}

// ensureTab returns the tab titled title, creating it with the header when missing.
func (r *Router) ensureTab(ctx context.Context, title string) (sheets.Worksheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, err := r.wb.Worksheet(ctx, title)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, sheets.ErrWorksheetNotFound) {
		return nil, &Error{Op: "find tab", Err: err}
	}

	ws, err = r.wb.AddWorksheet(ctx, title, TabRows, TabCols)
	if err != nil {
		return nil, &Error{Op: "create tab", Err: err}
	}
	// A failure below leaves a tab without a header; it is reused as is next time.
	if err := ws.AppendRows(ctx, [][]any{Header}); err != nil {
		return nil, &Error{Op: "write header", Err: err}
	}
	if err := ws.FormatBold(ctx, HeaderRange); err != nil {
		return nil, &Error{Op: "format header", Err: err}
	}
	r.logger.InfoContext(ctx, "Ledger tab created", "tab", title)
	return ws, nil
}

// rows stamps each item with the record's own date as written. The resolved
// date fills the cell only when the record has none.
func (r *Router) rows(ctx context.Context, rec core.Receipt, date, now time.Time) [][]any {
	day := strings.TrimSpace(rec.Date)
	if day == "" {
		day = date.Format(core.DateLayout)
	}
	insertedAt := now.Format(core.TimestampLayout)

	rows := make([][]any, 0, len(rec.Items))
	for _, it := range rec.Items {
		if want, err := core.LineTotalFor(it.Quantity.Int64(), it.UnitPrice.Int64()); err == nil && want != it.LineTotal.Int64() {
			r.logger.WarnContext(ctx, "ledger: line total mismatch",
				"store", rec.Store, "item", it.Name,
				"line_total", it.LineTotal.Int64(), "expected", want)
		}
		rows = append(rows, []any{
			day,
			rec.Store,
			it.CategoryOrPlaceholder(),
			it.Name,
			it.Quantity.Int64(),
			it.UnitPrice.Int64(),
			it.LineTotal.Int64(),
			insertedAt,
		})
	}
	return rows
}
