// Package http serves the receipt capture web UI: image upload, the manual
// entry form and the HTMX partials behind them.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nota/internal/cache"
	"nota/internal/core"
	applog "nota/internal/log"
	"nota/internal/services"
	appweb "nota/web"
)

// ReceiptService is what the handlers need from services.ReceiptService.
type ReceiptService interface {
	ScanBatch(ctx context.Context, uploads []services.Upload) services.BatchResult
	SubmitManual(ctx context.Context, d core.Draft) services.Outcome
}

// ReadyCheck reports whether a backend dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps are the collaborators a Server is built from.
type Deps struct {
	Receipts       ReceiptService
	Categories     []string
	MaxUploadBytes int64
	Logger         *slog.Logger
	// Checks are run by /readyz, keyed by name.
	Checks map[string]ReadyCheck
	// Janitor, when set, prunes the batch cache.
	Janitor *cache.Janitor
}

type Server struct {
	http.Server
	templates  *template.Template
	receipts   ReceiptService
	categories []string
	maxUpload  int64
	checks     map[string]ReadyCheck

	logger     *applog.Logger
	structured *applog.StructuredLogger

	rateLimiter     *rateLimiter
	securityMetrics *securityMetrics
	batches         *cache.LRUCache[services.BatchResult]

	now          func() time.Time
	started      time.Time
	shutdownOnce sync.Once
}

const (
	defaultMaxUpload = 10 << 20
	batchCacheSize   = 100
	batchCacheTTL    = 30 * time.Minute
)

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpLogger := applog.Wrap(logger, applog.ComponentHTTP)

	cats := deps.Categories
	if len(cats) == 0 {
		cats = core.DefaultCategories
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		receipts:        deps.Receipts,
		categories:      cats,
		maxUpload:       maxUpload,
		checks:          deps.Checks,
		logger:          httpLogger,
		structured:      applog.NewStructuredLogger(httpLogger),
		rateLimiter:     newRateLimiter(60, time.Minute),
		securityMetrics: &securityMetrics{},
		batches:         cache.NewLRUCache[services.BatchResult](batchCacheSize, batchCacheTTL),
		now:             time.Now,
		started:         time.Now(),
	}
	if deps.Janitor != nil {
		deps.Janitor.Register(s.batches)
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		httpLogger.Warn("Failed parsing templates", applog.FieldError, err, applog.FieldComponent, applog.ComponentTemplate)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		httpLogger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/", s.withSecurity(s.handleIndex))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/receipts/scan", s.withSecurity(s.handleScan))
	mux.HandleFunc("/receipts/manual", s.withSecurity(s.handleManual))
	mux.HandleFunc("/receipts/batches/{id}", s.withSecurity(s.handleBatch))
	mux.HandleFunc("/ui/items/add", s.withSecurity(s.handleAddItem))
	mux.HandleFunc("/ui/items/remove", s.withSecurity(s.handleRemoveItem))

	return s
}

// withSecurity adds security headers, rate limiting on POST and request logging.
func (s *Server) withSecurity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		reqLogger := s.logger.With(applog.FieldRequestID, requestID)
		ctx := applog.NewContext(r.Context(), reqLogger)
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, s.securityMetrics) {
			reqLogger.WarnContext(ctx, "Suspicious request",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.securityMetrics) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldComponent, applog.ComponentRateLimit,
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Terlalu banyak permintaan. Coba lagi nanti.", http.StatusTooManyRequests)
			return
		}

		h := w.Header()
		h.Set("X-Request-ID", requestID)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data: blob:; connect-src 'self'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

var templateFuncs = template.FuncMap{
	"rupiah": core.FormatRupiah,
	"inc":    func(i int) int { return i + 1 },
}
