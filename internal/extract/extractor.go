// Package extract turns receipt images into records by asking a vision model
// for JSON and decoding its reply defensively.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"nota/internal/core"
)

// Image is one uploaded receipt photo.
type Image struct {
	Name     string
	Data     []byte
	MIMEType string
}

// DetectedMIME returns MIMEType, sniffing Data when it is unset or generic.
func (img Image) DetectedMIME() string {
	mt := strings.TrimSpace(img.MIMEType)
	if mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(img.Data)
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// Model is a vision-capable language model. The returned text is untrusted.
type Model interface {
	Generate(ctx context.Context, prompt string, img Image) (string, error)
}

type Extractor struct {
	model  Model
	prompt string
	cats   []string
	logger *slog.Logger
}

type Option func(*Extractor)

// WithCategories sets the closed category list offered to the model.
func WithCategories(cats []string) Option {
	return func(e *Extractor) {
		if len(cats) > 0 {
			e.cats = cats
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(model Model, opts ...Option) *Extractor {
	e := &Extractor{model: model, cats: core.DefaultCategories, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.prompt = BuildPrompt(e.cats)
	return e
}

// Prompt returns the instruction sent with every image.
func (e *Extractor) Prompt() string { return e.prompt }

// Extract sends img to the model once and decodes the reply. Every failure is
// an *Error; model call failures are not retried.
func (e *Extractor) Extract(ctx context.Context, img Image) (core.Receipt, error) {
	if e.model == nil {
		return core.Receipt{}, &Error{Kind: KindModelCall, Err: errors.New("no model configured")}
	}
	if len(img.Data) == 0 {
		return core.Receipt{}, &Error{Kind: KindUnreadable, Message: "empty image"}
	}

	text, err := e.model.Generate(ctx, e.prompt, img)
	if err != nil {
		e.logger.ErrorContext(ctx, "Vision model call failed", "image", img.Name, "error", err)
		return core.Receipt{}, &Error{Kind: KindModelCall, Err: err}
	}

	rec, err := Decode(text)
	if err != nil {
		var xe *Error
		if errors.As(err, &xe) {
			e.logger.WarnContext(ctx, "Receipt extraction rejected",
				"image", img.Name, "kind", xe.Kind.String(), "detail", xe.Message)
		}
		return core.Receipt{}, err
	}

	for _, it := range rec.Items {
		if it.Category != "" && !core.IsCategory(e.cats, it.Category) {
			e.logger.WarnContext(ctx, "Model returned unknown category", "image", img.Name, "category", it.Category)
		}
	}
	e.logger.InfoContext(ctx, "Receipt extracted", "image", img.Name, "store", rec.Store, "items", rec.ItemCount())
	return rec, nil
}
