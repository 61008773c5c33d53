package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nota/internal/core"
	"nota/internal/extract"
	"nota/internal/services"
)

type fakeReceipts struct {
	mu      sync.Mutex
	scanned []string
	drafts  []core.Draft
}

func (f *fakeReceipts) ScanBatch(ctx context.Context, uploads []services.Upload) services.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := services.NewBatchResult()
	for _, u := range uploads {
		name := u.Image.Name
		switch {
		case u.Err != nil:
			res.Add(services.Outcome{Name: name, Err: u.Err, Message: "Gagal: " + u.Err.Error()})
		case strings.Contains(name, "blurry"):
			f.scanned = append(f.scanned, name)
			err := &extract.Error{Kind: extract.KindUnreadable}
			res.Add(services.Outcome{Name: name, Err: err, Message: extract.UserMessage(err)})
		default:
			f.scanned = append(f.scanned, name)
			res.Add(services.Outcome{Name: name, OK: true, Tab: "Maret 2025", Store: "Indomaret", Items: 2, Total: 12500, Message: "Masuk ke sheet: Maret 2025"})
		}
	}
	return res
}

func (f *fakeReceipts) SubmitManual(ctx context.Context, d core.Draft) services.Outcome {
	f.mu.Lock()
	f.drafts = append(f.drafts, d)
	f.mu.Unlock()

	rec, err := d.Record()
	if err != nil {
		return services.Outcome{Name: d.Store, Err: err, Message: services.ManualMessage(err)}
	}
	if rec.Store == "Offline" {
		err := errors.New("sheets unavailable")
		return services.Outcome{Name: d.Store, Err: err, Message: "Gagal: " + err.Error()}
	}
	return services.Outcome{Name: d.Store, OK: true, Tab: "Maret 2025", Store: rec.Store, Items: len(rec.Items), Message: "Masuk ke sheet: Maret 2025"}
}

func newTestServer(t *testing.T, deps Deps) (*Server, *fakeReceipts) {
	t.Helper()
	fake := &fakeReceipts{}
	if deps.Receipts == nil {
		deps.Receipts = fake
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	require.NotNil(t, srv.templates, "templates should parse")
	return srv, fake
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postImages(t *testing.T, srv *Server, files map[string][]byte, order []string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/receipts/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Catat Nota Belanja")
	for _, c := range core.DefaultCategories {
		assert.Contains(t, body, template.HTMLEscapeString(c))
	}
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Checks: map[string]ReadyCheck{
		"ledger": func(context.Context) error { return errors.New("workbook not found") },
	}})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var payload struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "not_ready", payload.Status)
	assert.Equal(t, "failed: workbook not found", payload.Checks["ledger"])
}

func TestScanBatch(t *testing.T) {
	srv, fake := newTestServer(t, Deps{})

	rr := postImages(t, srv, map[string][]byte{
		"a.jpg":      []byte("one"),
		"blurry.jpg": []byte("two"),
		"c.jpg":      []byte("three"),
	}, []string{"a.jpg", "blurry.jpg", "c.jpg"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "2 berhasil, 1 gagal")
	assert.Contains(t, body, "Masuk ke sheet: Maret 2025")
	assert.Contains(t, body, "blurry")
	assert.Equal(t, []string{"a.jpg", "blurry.jpg", "c.jpg"}, fake.scanned)

	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"batch:finished"`)
	assert.Contains(t, trigger, `"succeeded":2`)
}

func TestScanRejectsOversizedImage(t *testing.T) {
	srv, fake := newTestServer(t, Deps{MaxUploadBytes: 8})

	rr := postImages(t, srv, map[string][]byte{
		"small.jpg": []byte("ok"),
		"large.jpg": bytes.Repeat([]byte("x"), 32),
	}, []string{"small.jpg", "large.jpg"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "1 berhasil, 1 gagal")
	assert.Contains(t, rr.Body.String(), "Gagal: ukuran gambar melebihi")
	assert.Equal(t, []string{"small.jpg"}, fake.scanned)
}

func TestScanRequiresImages(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	rr := postImages(t, srv, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/scan", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBatchCanBeReloaded(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	rr := postImages(t, srv, map[string][]byte{"a.jpg": []byte("one")}, []string{"a.jpg"})
	require.Equal(t, http.StatusOK, rr.Code)

	var trigger struct {
		Batch struct {
			ID string `json:"id"`
		} `json:"batch:finished"`
	}
	require.NoError(t, json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &trigger))
	require.NotEmpty(t, trigger.Batch.ID)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/batches/"+trigger.Batch.ID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "1 berhasil, 0 gagal")

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/batches/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestManualEntry(t *testing.T) {
	srv, fake := newTestServer(t, Deps{})

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing store",
			form:       url.Values{"store": {" "}, "item_name": {"Aqua"}, "item_quantity": {"1"}, "item_unit_price": {"3000"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   services.MsgStoreRequired,
		},
		{
			name:       "all rows empty",
			form:       url.Values{"store": {"Alfamart"}, "item_name": {"", ""}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   services.MsgItemsRequired,
		},
		{
			name:       "total too large",
			form:       url.Values{"store": {"Alfamart"}, "item_name": {"Emas"}, "item_quantity": {"4000000000"}, "item_unit_price": {"4000000000000"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   services.MsgTooLarge,
		},
		{
			name:       "ledger failure",
			form:       url.Values{"store": {"Offline"}, "item_name": {"Aqua"}},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Gagal: sheets unavailable",
		},
		{
			name: "success skips unnamed rows",
			form: url.Values{
				"store":           {"Alfamart"},
				"date":            {"2025-03-14"},
				"item_name":       {"Aqua", "", "Roti"},
				"item_category":   {"Food & Drink", "Snack", "Grocery"},
				"item_quantity":   {"2", "1", "1"},
				"item_unit_price": {"3000", "1000", "12.000"},
			},
			wantStatus: http.StatusOK,
			wantBody:   "Masuk ke sheet: Maret 2025",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(srv, "/receipts/manual", tt.form)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}

	last := fake.drafts[len(fake.drafts)-1]
	require.Len(t, last.Items, 3)
	assert.Equal(t, int64(12000), last.Items[2].UnitPrice)
}

func TestManualSuccessResetsRows(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	rr := postForm(srv, "/receipts/manual", url.Values{"store": {"Alfamart"}, "item_name": {"Aqua", "Roti"}})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `hx-swap-oob="true"`)
	assert.Equal(t, 1, strings.Count(body, `name="item_name"`))
	assert.Contains(t, rr.Header().Get("HX-Trigger"), `"form:reset"`)
}

func TestItemRows(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Categories: []string{"Snack", "Grocery"}})

	rr := postForm(srv, "/ui/items/add", url.Values{"item_name": {"Aqua"}, "item_category": {"Snack"}})
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Equal(t, 2, strings.Count(body, `name="item_name"`))
	assert.Contains(t, body, `value="Aqua"`)
	assert.Contains(t, body, `<option value="Snack" selected>`)

	rr = postForm(srv, "/ui/items/remove", url.Values{"item_name": {"Aqua", "Roti", "Susu"}, "index": {"0"}})
	require.Equal(t, http.StatusOK, rr.Code)
	body = rr.Body.String()
	assert.Equal(t, 2, strings.Count(body, `name="item_name"`))
	assert.NotContains(t, body, `value="Aqua"`)

	rr = postForm(srv, "/ui/items/remove", url.Values{"item_name": {"Aqua"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, strings.Count(rr.Body.String(), `name="item_name"`))
}

func TestRateLimitOnPost(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	srv.rateLimiter.limit = 2

	for i := 0; i < 2; i++ {
		rr := postForm(srv, "/ui/items/add", url.Values{})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := postForm(srv, "/ui/items/add", url.Values{})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "GET is not rate limited")
}
