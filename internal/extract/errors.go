package extract

import (
	"errors"
	"fmt"
)

// Kind classifies why a receipt image could not become a record.
type Kind int

const (
	KindUnreadable Kind = iota + 1
	KindModelRejected
	KindInvalidShape
	KindNoItems
	KindModelCall
)

func (k Kind) String() string {
	switch k {
	case KindUnreadable:
		return "unreadable"
	case KindModelRejected:
		return "model_rejected"
	case KindInvalidShape:
		return "invalid_shape"
	case KindNoItems:
		return "no_items"
	case KindModelCall:
		return "model_call"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrUnreadable    = &Error{Kind: KindUnreadable}
	ErrModelRejected = &Error{Kind: KindModelRejected}
	ErrInvalidShape  = &Error{Kind: KindInvalidShape}
	ErrNoItems       = &Error{Kind: KindNoItems}
	ErrModelCall     = &Error{Kind: KindModelCall}
)

// Error is an extraction failure. Message carries the model's own reason for
// KindModelRejected and a short detail otherwise.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "extract: " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage is the text shown next to the failed image.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindUnreadable:
		return "Gambar tidak bisa diproses sebagai nota. Mungkin buram, terpotong, atau bukan nota."
	case KindModelRejected:
		if e.Message == "" {
			return "Model tidak bisa membaca nota ini."
		}
		return fmt.Sprintf("Model tidak bisa membaca nota ini: %s", e.Message)
	case KindInvalidShape:
		return "Data nota tidak lengkap: nama toko atau daftar barang tidak ada."
	case KindNoItems:
		return "Tidak ada barang yang ditemukan di nota ini."
	case KindModelCall:
		return "Model vision tidak bisa dihubungi. Silakan coba lagi."
	default:
		return "Gagal membaca nota."
	}
}

// UserMessage returns the user-facing text for err, falling back to err.Error()
// for failures that did not come from extraction.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return err.Error()
}
