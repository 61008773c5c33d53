package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nota/internal/core"
	applog "nota/internal/log"
	"nota/internal/services"
)

const maxImagesPerBatch = 20

type (
	itemRowsView struct {
		Items      []core.DraftItem
		Categories []string
	}

	indexView struct {
		Date        string
		MaxUploadMB int64
		Categories  []string
		Rows        itemRowsView
	}

	manualView struct {
		Outcome services.Outcome
		// Fresh replaces the item rows after a successful submit.
		Fresh *itemRowsView
	}
)

func (s *Server) rowsView(d core.Draft) itemRowsView {
	return itemRowsView{Items: d.Items, Categories: s.categories}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady runs the configured dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.receipts == nil {
		checks["receipts"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	rateLimitHits, suspicious := s.securityMetrics.snapshot()
	checks["rate_limiter"] = map[string]any{
		"active_clients":  s.rateLimiter.ActiveClients(),
		"rate_limit_hits": rateLimitHits,
	}
	checks["security"] = map[string]any{"suspicious_requests": suspicious}
	checks["batch_cache"] = map[string]any{"entries": s.batches.Size()}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	draft := core.NewDraft(s.now())
	data := indexView{
		Date:        draft.Date,
		MaxUploadMB: s.maxUpload >> 20,
		Categories:  s.categories,
		Rows:        s.rowsView(draft),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index", data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Index template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender)
	}
}

// handleScan extracts and records every uploaded image in upload order.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload*maxImagesPerBatch+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.WarnContext(ctx, "Multipart parse failed", applog.FieldError, err, applog.FieldOperation, applog.OpParse)
		BadRequestError("Unggahan tidak valid atau terlalu besar").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[fieldImages]
	if len(headers) == 0 {
		UnprocessableEntityError("Pilih minimal 1 gambar nota!").Write(w)
		return
	}
	if len(headers) > maxImagesPerBatch {
		UnprocessableEntityError(fmt.Sprintf("Maksimal %d gambar sekali unggah.", maxImagesPerBatch)).Write(w)
		return
	}
	if s.receipts == nil {
		InternalServerError("Layanan nota belum dikonfigurasi").Write(w)
		return
	}

	uploads := readUploads(headers, s.maxUpload)
	batch := make([]services.Upload, len(uploads))
	for i, u := range uploads {
		batch[i] = services.Upload{Image: u.image}
		if u.err != nil {
			batch[i].Err = s.uploadError(u.err)
		}
	}
	res := s.receipts.ScanBatch(ctx, batch)
	s.batches.Set(res.ID, res)

	resp := NewHTMXResponse().TriggerBatchFinished(res.ID, res.Succeeded, res.Failed)
	if res.Failed == 0 {
		resp.TriggerSuccessNotification(res.Summary())
	} else {
		resp.TriggerErrorNotification(res.Summary())
	}
	resp.BodyTemplate(s.templates, "scan_result", res).Write(w)
}

func (s *Server) uploadError(err error) error {
	if errors.Is(err, errImageTooLarge) {
		return fmt.Errorf("ukuran gambar melebihi %d MB", s.maxUpload>>20)
	}
	return err
}

// handleBatch re-renders a recent scan batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	res, ok := s.batches.Get(r.PathValue("id"))
	if !ok {
		NotFoundError("Batch tidak ditemukan").Write(w)
		return
	}
	NewHTMXResponse().BodyTemplate(s.templates, "scan_result", res).Write(w)
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.receipts == nil {
		InternalServerError("Layanan nota belum dikonfigurasi").Write(w)
		return
	}

	out := s.receipts.SubmitManual(r.Context(), ParseDraft(r.PostForm))
	if !out.OK {
		status := http.StatusInternalServerError
		if isValidationError(out.Err) {
			status = http.StatusUnprocessableEntity
		}
		NewHTMXResponse().
			Status(status).
			TriggerErrorNotification(out.Message).
			BodyTemplate(s.templates, "manual_result", manualView{Outcome: out}).
			Write(w)
		return
	}

	fresh := s.rowsView(core.NewDraft(s.now()))
	NewHTMXResponse().
		TriggerReceiptRecorded(out.Tab, out.Items).
		TriggerFormReset().
		TriggerSuccessNotification(out.Message).
		BodyTemplate(s.templates, "manual_result", manualView{Outcome: out, Fresh: &fresh}).
		Write(w)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrEmptyStore, core.ErrNoItems, core.ErrEmptyItemName,
		core.ErrInvalidQuantity, core.ErrInvalidUnitPrice, core.ErrAmountTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleAddItem appends an empty row to the posted draft.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s.editItems(w, r, func(d *core.Draft) { d.AddItem() })
}

// handleRemoveItem drops the posted index, or the last row when none is given.
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	s.editItems(w, r, func(d *core.Draft) {
		if i := ParseIndex(r.PostForm); i >= 0 {
			d.RemoveItem(i)
			return
		}
		d.RemoveLast()
	})
}

func (s *Server) editItems(w http.ResponseWriter, r *http.Request, edit func(*core.Draft)) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	d := ParseDraft(r.PostForm)
	edit(&d)
	NewHTMXResponse().BodyTemplate(s.templates, "item_rows", s.rowsView(d)).Write(w)
}
