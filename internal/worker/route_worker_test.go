package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nota/internal/amqp"
	"nota/internal/core"
	"nota/internal/ledger"
	"nota/internal/sheets/memory"
	"nota/internal/storage"
)

func setup(t *testing.T) (*storage.Journal, *memory.Workbook, *RouteWorker) {
	t.Helper()
	j, err := storage.NewJournal(filepath.Join(t.TempDir(), "nota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	wb := memory.New("Laporan Keuangan")
	w := NewRouteWorker(j, ledger.NewRouter(wb), 10, nil)
	return j, wb, w
}

func receipt(date string) core.Receipt {
	return core.Receipt{
		Store: "Indomaret",
		Date:  date,
		Items: []core.LineItem{{Category: "Snack", Name: "Chitato", Quantity: 2, UnitPrice: 10000, LineTotal: 20000}},
	}
}

func TestHandleRouteMessage(t *testing.T) {
	j, wb, w := setup(t)
	ctx := context.Background()
	recordedAt := time.Date(2025, 4, 1, 8, 0, 0, 0, time.Local)

	e, err := j.Enqueue(ctx, storage.SourceScan, receipt(""), core.TabTitle(recordedAt), recordedAt, "")
	require.NoError(t, err)

	require.NoError(t, w.HandleRouteMessage(ctx, amqp.NewReceiptRouteMessage(e.ID, e.TabTitle)))

	rows := wb.Sheet("April 2025").Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-04-01", rows[1][0], "missing date resolves to recorded_at")
	assert.Equal(t, "2025-04-01 08:00:00", rows[1][7])

	got, err := j.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSynced, got.Status)

	// redelivery is a no-op
	require.NoError(t, w.HandleRouteMessage(ctx, amqp.NewReceiptRouteMessage(e.ID, e.TabTitle)))
	assert.Len(t, wb.Sheet("April 2025").Rows(), 2)

	// unknown ids are acknowledged
	assert.NoError(t, w.HandleRouteMessage(ctx, amqp.NewReceiptRouteMessage(404, "")))
}

func TestProcessPending(t *testing.T) {
	j, wb, w := setup(t)
	ctx := context.Background()
	now := time.Now()

	for _, d := range []string{"2025-03-14", "2025-03-20", "2025-02-01"} {
		_, err := j.Enqueue(ctx, storage.SourceManual, receipt(d), core.TabTitleFor(d, now), now, "")
		require.NoError(t, err)
	}

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, wb.Sheet("Maret 2025").Rows(), 3)
	assert.Len(t, wb.Sheet("Februari 2025").Rows(), 2)

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingAppender struct{ err error }

func (f failingAppender) AppendAt(context.Context, core.Receipt, time.Time) (string, error) {
	return "", f.err
}

func TestProcessPending_FailureIsRecorded(t *testing.T) {
	j, _, _ := setup(t)
	ctx := context.Background()
	w := NewRouteWorker(j, failingAppender{err: errors.New("quota exceeded")}, 10, nil)

	e, err := j.Enqueue(ctx, storage.SourceScan, receipt("2025-03-14"), "Maret 2025", time.Now(), "")
	require.NoError(t, err)

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := j.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "quota exceeded", got.LastError)

	require.NoError(t, w.HandleRouteMessage(ctx, amqp.NewReceiptRouteMessage(e.ID, "")))
	got, err = j.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

type slowAppender struct {
	next  Appender
	delay time.Duration
}

func (s slowAppender) AppendAt(ctx context.Context, rec core.Receipt, now time.Time) (string, error) {
	time.Sleep(s.delay)
	return s.next.AppendAt(ctx, rec, now)
}

func TestMessageAndSweepRouteOnce(t *testing.T) {
	j, wb, _ := setup(t)
	ctx := context.Background()
	w := NewRouteWorker(j, slowAppender{next: ledger.NewRouter(wb), delay: 50 * time.Millisecond}, 10, nil)

	e, err := j.Enqueue(ctx, storage.SourceScan, receipt("2025-03-14"), "Maret 2025", time.Now(), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- w.HandleRouteMessage(ctx, amqp.NewReceiptRouteMessage(e.ID, e.TabTitle))
	}()
	go func() {
		defer wg.Done()
		_, err := w.ProcessPending(ctx)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, wb.Sheet("Maret 2025").Rows(), 2, "header plus one row")
	got, err := j.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSynced, got.Status)
}

func TestRun_StopsOnCancel(t *testing.T) {
	_, _, w := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
