package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Output: &buf})
	l.Info("Receipt appended", FieldTab, "Maret 2025")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, `tab="Maret 2025"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	l.WithComponent(ComponentExtract).Warn("x")
	if strings.Count(buf.String(), "component=") != 1 || !strings.Contains(buf.String(), "component=extract") {
		t.Fatalf("component not replaced: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "handled")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id missing: %s", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	ctx := context.Background()

	sl.LogReceiptRecorded(ctx, "scan", "Indomaret", 2, "Maret 2025")
	sl.LogError(ctx, "Append failed", errors.New("quota"), OpAppend, nil)
	sl.LogHTTPEnd(ctx, httptest.NewRequest(http.MethodPost, "/receipts/scan", nil), 500, 12, "1.2.3.4")

	out := buf.String()
	for _, want := range []string{"store=Indomaret", "source=scan", "error=quota", "level=ERROR", "status_code=500"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
