package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"nota/internal/core"
)

const fence = "```"

// Unfence returns the JSON candidate inside model text. The accepted grammar is
// either exactly one fenced block, optionally tagged with a language on the
// opening line, or a raw JSON value. A stray closing fence after a raw value
// is dropped. Surrounding whitespace is ignored.
func Unfence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, fence) {
		return strings.TrimSpace(strings.TrimSuffix(s, fence))
	}
	body := s[len(fence):]
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		// ```{...}``` on a single line
		body = strings.TrimSuffix(body, fence)
		return strings.TrimSpace(strings.TrimPrefix(body, "json"))
	}
	tag := strings.TrimSpace(body[:nl])
	if strings.ContainsAny(tag, "{[") {
		// no language tag; the JSON starts on the fence line
		nl = -1
	}
	body = strings.TrimSpace(body[nl+1:])
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}

// Decode turns model text into a receipt, classifying every failure.
func Decode(text string) (core.Receipt, error) {
	raw := Unfence(text)
	if raw == "" {
		return core.Receipt{}, &Error{Kind: KindUnreadable, Message: "empty response"}
	}

	var top any
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return core.Receipt{}, &Error{Kind: KindUnreadable, Err: err}
	}
	fields, ok := top.(map[string]any)
	if !ok {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "response is not a JSON object"}
	}

	if v, ok := fields["error"]; ok && v != nil {
		msg, isString := v.(string)
		if !isString {
			b, _ := json.Marshal(v)
			msg = string(b)
		}
		return core.Receipt{}, &Error{Kind: KindModelRejected, Message: strings.TrimSpace(msg)}
	}

	var wire struct {
		Store *json.RawMessage `json:"store"`
		Date  json.RawMessage  `json:"date"`
		Items *json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Err: err}
	}

	if wire.Items == nil || isNull(*wire.Items) {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "missing items"}
	}
	var items []core.LineItem
	if err := json.Unmarshal(*wire.Items, &items); err != nil {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "items", Err: err}
	}
	if len(items) == 0 {
		return core.Receipt{}, &Error{Kind: KindNoItems}
	}

	if wire.Store == nil || isNull(*wire.Store) {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "missing store"}
	}
	var store string
	if err := json.Unmarshal(*wire.Store, &store); err != nil {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "store", Err: err}
	}
	if strings.TrimSpace(store) == "" {
		return core.Receipt{}, &Error{Kind: KindInvalidShape, Message: "missing store"}
	}

	// A non-string date is dropped; the router falls back to the recording time.
	var date string
	if len(wire.Date) > 0 {
		_ = json.Unmarshal(wire.Date, &date)
	}

	return core.Receipt{Store: store, Date: date, Items: items}, nil
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// IsExtractionError reports whether err is an *Error of any kind.
func IsExtractionError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
