// Package services coordinates extraction, archiving and ledger recording
// for the web server and the CLI.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nota/internal/archive"
	"nota/internal/core"
	"nota/internal/extract"
	applog "nota/internal/log"
	"nota/internal/storage"
)

// Extractor turns one image into a receipt.
type Extractor interface {
	Extract(ctx context.Context, img extract.Image) (core.Receipt, error)
}

// Outcome is the result shown for one receipt.
type Outcome struct {
	Name    string
	OK      bool
	Tab     string
	Store   string
	Items   int
	Total   int64
	Message string
	Err     error
}

// BatchResult collects the outcomes of a scan batch in upload order.
type BatchResult struct {
	ID        string
	Outcomes  []Outcome
	Succeeded int
	Failed    int
}

// NewBatchResult starts an empty batch with a fresh ID.
func NewBatchResult() BatchResult {
	return BatchResult{ID: uuid.NewString()}
}

// Add appends out and updates the counters.
func (b *BatchResult) Add(out Outcome) {
	if out.OK {
		b.Succeeded++
	} else {
		b.Failed++
	}
	b.Outcomes = append(b.Outcomes, out)
}

// Summary is the aggregate line, e.g. "2 berhasil, 1 gagal".
func (b BatchResult) Summary() string {
	return fmt.Sprintf("%d berhasil, %d gagal", b.Succeeded, b.Failed)
}

// Manual entry messages.
const (
	MsgStoreRequired = "Nama toko harus diisi!"
	MsgItemsRequired = "Minimal 1 barang harus diisi!"
	MsgBadQuantity   = "Jumlah barang minimal 1!"
	MsgBadUnitPrice  = "Harga satuan tidak boleh negatif!"
	MsgTooLarge      = "Jumlah atau harga terlalu besar!"
)

type ReceiptService struct {
	extractor Extractor
	recorder  Recorder
	archiver  archive.Archiver
	now       func() time.Time
	logger    *applog.StructuredLogger
}

func NewReceiptService(extractor Extractor, recorder Recorder, archiver archive.Archiver, logger *slog.Logger) *ReceiptService {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &ReceiptService{
		extractor: extractor,
		recorder:  recorder,
		archiver:  archiver,
		now:       time.Now,
		logger:    applog.NewStructuredLogger(applog.Wrap(logger, applog.ComponentReceipt)),
	}
}

// Upload is one image queued for a scan batch.
type Upload struct {
	Image extract.Image
	// Err rejects the image before extraction; its text is shown to the user.
	Err error
	// ArchiveURI is set for an image read back from the archive. It is
	// recorded as the archive object and not stored again.
	ArchiveURI string
}

// Uploads queues images that passed every check.
func Uploads(images ...extract.Image) []Upload {
	out := make([]Upload, len(images))
	for i, img := range images {
		out[i] = Upload{Image: img}
	}
	return out
}

// ScanBatch processes uploads one after another in order. A rejected or
// failing image never stops the rest of the batch.
func (s *ReceiptService) ScanBatch(ctx context.Context, uploads []Upload) BatchResult {
	res := NewBatchResult()
	for i, u := range uploads {
		if u.Image.Name == "" {
			u.Image.Name = fmt.Sprintf("image %d", i+1)
		}
		if u.Err != nil {
			res.Add(rejected(u.Image.Name, u.Err.Error()))
			continue
		}
		res.Add(s.scan(ctx, u))
	}
	logBatch(ctx, res)
	return res
}

func logBatch(ctx context.Context, res BatchResult) {
	slog.InfoContext(ctx, "Scan batch finished",
		applog.FieldBatchID, res.ID,
		"images", len(res.Outcomes),
		"succeeded", res.Succeeded,
		"failed", res.Failed)
}

func rejected(name, reason string) Outcome {
	return Outcome{Name: name, Message: "Gagal: " + reason, Err: errors.New(reason)}
}

// scan archives, extracts and records a single image.
func (s *ReceiptService) scan(ctx context.Context, u Upload) Outcome {
	img := u.Image
	out := Outcome{Name: img.Name}

	object := u.ArchiveURI
	if object == "" {
		var err error
		object, err = s.archiver.Store(ctx, img, s.now())
		if err != nil {
			// archiving is best effort
			s.logger.LogError(ctx, "Receipt image archive failed", err, applog.OpArchive, applog.NewFields().WithComponent(applog.ComponentArchive))
			object = ""
		}
	}

	if s.extractor == nil {
		err := &extract.Error{Kind: extract.KindModelCall, Err: errors.New("no vision model configured")}
		out.Err, out.Message = err, extract.UserMessage(err)
		return out
	}

	rec, err := s.extractor.Extract(ctx, img)
	if err != nil {
		out.Err, out.Message = err, extract.UserMessage(err)
		return out
	}
	return s.record(ctx, storage.SourceScan, rec, object, out)
}

// SubmitManual records a hand-typed receipt. Rows without a name are ignored
// and line totals are computed.
func (s *ReceiptService) SubmitManual(ctx context.Context, d core.Draft) Outcome {
	out := Outcome{Name: d.Store}
	rec, err := d.Record()
	if err != nil {
		out.Err, out.Message = err, ManualMessage(err)
		return out
	}
	return s.record(ctx, storage.SourceManual, rec, "", out)
}

// RecordReceipt records an already structured receipt, such as one typed on the command line.
func (s *ReceiptService) RecordReceipt(ctx context.Context, source string, rec core.Receipt) Outcome {
	out := Outcome{Name: rec.Store}
	if err := rec.Validate(); err != nil {
		out.Err, out.Message = err, ManualMessage(err)
		return out
	}
	return s.record(ctx, source, rec, "", out)
}

func (s *ReceiptService) record(ctx context.Context, source string, rec core.Receipt, object string, out Outcome) Outcome {
	out.Store = rec.Store
	out.Items = rec.ItemCount()
	for _, it := range rec.Items {
		out.Total += it.LineTotal.Int64()
	}

	title, err := s.recorder.Record(ctx, source, rec, object)
	if err != nil {
		s.logger.LogError(ctx, "Recording receipt failed", err, applog.OpAppend,
			applog.NewFields().WithReceipt(rec.Store, rec.ItemCount(), ""))
		out.Err = err
		out.Message = "Gagal: " + err.Error()
		return out
	}

	s.logger.LogReceiptRecorded(ctx, source, rec.Store, rec.ItemCount(), title)
	out.OK = true
	out.Tab = title
	out.Message = "Masuk ke sheet: " + title
	return out
}

// ManualMessage maps a record validation error to the form message.
func ManualMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyStore):
		return MsgStoreRequired
	case errors.Is(err, core.ErrNoItems), errors.Is(err, core.ErrEmptyItemName):
		return MsgItemsRequired
	case errors.Is(err, core.ErrInvalidQuantity):
		return MsgBadQuantity
	case errors.Is(err, core.ErrInvalidUnitPrice):
		return MsgBadUnitPrice
	case errors.Is(err, core.ErrAmountTooLarge):
		return MsgTooLarge
	default:
		return "Gagal: " + err.Error()
	}
}
