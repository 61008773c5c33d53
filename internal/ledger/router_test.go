package ledger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nota/internal/core"
	"nota/internal/sheets"
	"nota/internal/sheets/memory"
)

var fixedNow = time.Date(2025, 6, 2, 9, 30, 15, 0, time.UTC)

func newTestRouter(t *testing.T) (*Router, *memory.Workbook) {
	t.Helper()
	wb := memory.New("Laporan Keuangan")
	r := NewRouter(wb, WithClock(func() time.Time { return fixedNow }))
	return r, wb
}

func indomaret() core.Receipt {
	return core.Receipt{
		Store: "Indomaret",
		Date:  "2025-03-14",
		Items: []core.LineItem{
			{Category: "Snack", Name: "Chitato", Quantity: 2, UnitPrice: 10000, LineTotal: 20000},
		},
	}
}

func TestAppend_IndomaretScenario(t *testing.T) {
	r, wb := newTestRouter(t)

	title, err := r.Append(context.Background(), indomaret())
	require.NoError(t, err)
	assert.Equal(t, "Maret 2025", title)

	ws := wb.Sheet("Maret 2025")
	require.NotNil(t, ws)
	rows := ws.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []any{"2025-03-14", "Indomaret", "Snack", "Chitato", int64(2), int64(10000), int64(20000), "2025-06-02 09:30:15"}, rows[1])
	assert.Equal(t, []string{"A1:H1"}, ws.BoldRanges())

	gotRows, gotCols := ws.Capacity()
	assert.Equal(t, 100, gotRows)
	assert.Equal(t, 20, gotCols)
}

func TestAppend_TabCreatedOnce(t *testing.T) {
	r, wb := newTestRouter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Append(ctx, indomaret())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, wb.Created("Maret 2025"))
	assert.Equal(t, []string{"Maret 2025"}, wb.Titles())

	rows := wb.Sheet("Maret 2025").Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, "Chitato", row[3])
	}
	assert.Len(t, wb.Sheet("Maret 2025").BoldRanges(), 1)
}

func TestAppend_RowCountGrowsByItemCount(t *testing.T) {
	r, wb := newTestRouter(t)
	ctx := context.Background()

	_, err := r.Append(ctx, indomaret())
	require.NoError(t, err)
	before := len(wb.Sheet("Maret 2025").Rows())
	calls := wb.Sheet("Maret 2025").AppendCalls()

	rec := indomaret()
	rec.Items = append(rec.Items,
		core.LineItem{Name: "Aqua", Quantity: 3, UnitPrice: 4000, LineTotal: 12000},
		core.LineItem{Name: "Roti", Category: "Snack", Quantity: 1, UnitPrice: 15000, LineTotal: 15000},
	)
	_, err = r.Append(ctx, rec)
	require.NoError(t, err)

	ws := wb.Sheet("Maret 2025")
	rows := ws.Rows()
	assert.Equal(t, before+3, len(rows))
	assert.Equal(t, calls+1, ws.AppendCalls(), "all items in one batch")

	// item order and shared timestamp
	assert.Equal(t, "Chitato", rows[before][3])
	assert.Equal(t, "Aqua", rows[before+1][3])
	assert.Equal(t, core.CategoryPlaceholder, rows[before+1][2])
	assert.Equal(t, "Roti", rows[before+2][3])
	for _, row := range rows[before:] {
		assert.Equal(t, "2025-06-02 09:30:15", row[7])
	}
}

func TestAppend_BadDateFallsBackToNow(t *testing.T) {
	tests := []struct {
		date    string
		wantDay string
	}{
		{"", "2025-06-02"},
		{"  ", "2025-06-02"},
		{"14/03/2025", "14/03/2025"},
		{"2025-13-01", "2025-13-01"},
		{"kemarin", "kemarin"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			r, wb := newTestRouter(t)
			rec := indomaret()
			rec.Date = tt.date

			title, err := r.Append(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, "Juni 2025", title, "tab follows the recording time")
			rows := wb.Sheet("Juni 2025").Rows()
			require.Len(t, rows, 2)
			assert.Equal(t, tt.wantDay, rows[1][0], "date cell keeps the receipt's own date")
		})
	}
}

func TestAppend_TitleDependsOnlyOnDate(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()
	a, err := r.AppendAt(ctx, core.Receipt{Store: "A", Date: "2024-12-31"}, fixedNow)
	require.NoError(t, err)
	b, err := r.AppendAt(ctx, core.Receipt{Store: "B", Date: "2024-12-01"}, fixedNow.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "Desember 2024", a)
	assert.Equal(t, a, b)
}

func TestAppend_EmptyItemsWritesNothing(t *testing.T) {
	r, wb := newTestRouter(t)
	title, err := r.Append(context.Background(), core.Receipt{Store: "Indomaret", Date: "2025-03-14"})
	require.NoError(t, err)
	assert.Equal(t, "Maret 2025", title)
	ws := wb.Sheet("Maret 2025")
	require.NotNil(t, ws)
	assert.Len(t, ws.Rows(), 1, "header only")
	assert.Equal(t, 1, ws.AppendCalls())
}

func TestAppend_HeaderlessTabIsReused(t *testing.T) {
	r, wb := newTestRouter(t)
	ctx := context.Background()
	_, err := wb.AddWorksheet(ctx, "Maret 2025", 100, 20)
	require.NoError(t, err)

	_, err = r.Append(ctx, indomaret())
	require.NoError(t, err)
	rows := wb.Sheet("Maret 2025").Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Chitato", rows[0][3])
	assert.Equal(t, 1, wb.Created("Maret 2025"))
}

func TestAppend_LineTotalMismatchIsKept(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	wb := memory.New("L")
	r := NewRouter(wb, WithClock(func() time.Time { return fixedNow }), WithLogger(logger))

	rec := indomaret()
	rec.Items[0].LineTotal = 19000
	_, err := r.Append(context.Background(), rec)
	require.NoError(t, err)

	rows := wb.Sheet("Maret 2025").Rows()
	assert.Equal(t, int64(19000), rows[1][6])
	assert.Contains(t, buf.String(), "line total mismatch")
}

func TestAppendJSON(t *testing.T) {
	r, wb := newTestRouter(t)
	ctx := context.Background()

	title, err := r.AppendJSON(ctx, []byte(`{"store":"Alfamart","date":"2025-01-05","items":[{"name":"Teh","quantity":"2","unit_price":"3500","line_total":7000}]}`), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "Januari 2025", title)
	rows := wb.Sheet("Januari 2025").Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1][4])
	assert.Equal(t, int64(3500), rows[1][5])

	_, err = r.AppendJSON(ctx, []byte(`{"store":`), fixedNow)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "decode", le.Op)
}

type failingBook struct {
	findErr  error
	addErr   error
	panicMsg string
}

func (f *failingBook) Title() string { return "broken" }

func (f *failingBook) Worksheet(context.Context, string) (sheets.Worksheet, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.findErr != nil {
		return nil, f.findErr
	}
	return nil, sheets.ErrWorksheetNotFound
}

func (f *failingBook) AddWorksheet(context.Context, string, int, int) (sheets.Worksheet, error) {
	return nil, f.addErr
}

func TestAppend_Errors(t *testing.T) {
	ctx := context.Background()
	quota := errors.New("quota exceeded")

	tests := []struct {
		name string
		book sheets.Workbook
		op   string
	}{
		{"lookup fails", &failingBook{findErr: quota}, "find tab"},
		{"create fails", &failingBook{addErr: quota}, "create tab"},
		{"panic", &failingBook{panicMsg: "boom"}, "append"},
		{"no workbook", nil, "open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.book)
			title, err := r.Append(ctx, indomaret())
			assert.Empty(t, title)
			var le *Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.op, le.Op)
		})
	}

	_, err := NewRouter(&failingBook{findErr: quota}).Append(ctx, indomaret())
	assert.ErrorIs(t, err, quota)
}
