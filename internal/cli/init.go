// Package cli holds the start-up steps shared by nota, nota-worker and notactl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nota/internal/archive"
	"nota/internal/cache"
	"nota/internal/config"
	"nota/internal/core"
	"nota/internal/extract"
	applog "nota/internal/log"
	"nota/internal/sheets"
	"nota/internal/sheets/google"
	"nota/internal/sheets/memory"
	"nota/internal/storage"
)

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the given level and makes it the default.
func SetupLogger(level, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs validate on it, exiting
// the process on failure.
func LoadAndValidateConfig(logger *applog.Logger, validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Categories returns the configured category list, or the defaults.
func Categories(cfg *config.Config, logger *applog.Logger) ([]string, error) {
	if cfg.CategoriesFile == "" {
		return core.DefaultCategories, nil
	}
	cats, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded categories", "file", cfg.CategoriesFile, "count", len(cats))
	return cats, nil
}

// Credentials returns the service account key location from cfg.
func Credentials(cfg *config.Config) google.Credentials {
	return google.Credentials{JSON: cfg.GoogleServiceAccountJSON, File: cfg.GoogleServiceAccountFile}
}

// OpenWorkbook opens the ledger workbook. The memory backend gets a fresh
// in-process workbook; anything else goes to Google Sheets.
func OpenWorkbook(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.Workbook, error) {
	var opener sheets.Opener
	if cfg.DataBackend == config.BackendMemory {
		opener = memory.NewOpener(memory.New(cfg.LedgerWorkbookName))
	} else {
		g, err := google.NewOpener(ctx, Credentials(cfg))
		if err != nil {
			return nil, fmt.Errorf("google sheets client: %w", err)
		}
		opener = g
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	wb, err := opener.Open(openCtx, cfg.LedgerWorkbookName)
	if err != nil {
		return nil, err
	}
	logger.Info("Opened ledger workbook", "workbook", wb.Title(), "backend", cfg.DataBackend)
	return wb, nil
}

// NewExtractor builds the receipt extractor. Without an API key the
// extractor still exists but every call fails with a model error.
func NewExtractor(ctx context.Context, cfg *config.Config, cats []string, logger *applog.Logger) (*extract.Extractor, error) {
	opts := []extract.Option{
		extract.WithCategories(cats),
		extract.WithLogger(logger.WithComponent(applog.ComponentExtract).Slog()),
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("No Gemini API key configured, image scanning is disabled")
		return extract.New(nil, opts...), nil
	}
	model, err := extract.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	logger.Info("Vision model ready", "model", model.Model())
	return extract.New(model, opts...), nil
}

// NewArchiver returns the GCS archiver when a bucket is configured, or a
// no-op archiver. The returned close func is never nil.
func NewArchiver(ctx context.Context, cfg *config.Config, logger *applog.Logger) (archive.Archiver, func(), error) {
	if cfg.ReceiptArchiveBucket == "" {
		return archive.Nop{}, func() {}, nil
	}
	g, err := NewGCS(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Receipt images will be archived", "bucket", cfg.ReceiptArchiveBucket)
	return g, func() { _ = g.Close() }, nil
}

// NewGCS opens the archive bucket client with the service account key when
// one is configured, else with application default credentials.
func NewGCS(ctx context.Context, cfg *config.Config) (*archive.GCS, error) {
	var key []byte
	if cfg.HasSheetsCredentials() {
		b, err := Credentials(cfg).Bytes()
		if err != nil {
			return nil, err
		}
		key = b
	}
	return archive.NewGCS(ctx, cfg.ReceiptArchiveBucket, key)
}

// InitJournal opens the SQLite outbox journal or exits the process.
func InitJournal(logger *applog.Logger, dbPath string) *storage.Journal {
	j, err := storage.NewJournal(dbPath)
	if err != nil {
		logger.Error("Failed to open receipt journal", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return j
}

// StartJanitor prunes every cache in cleaners until ctx is done.
func StartJanitor(ctx context.Context, logger *applog.Logger, cleaners ...any) *cache.Janitor {
	j := cache.NewJanitor(logger.WithComponent(applog.ComponentApp).Slog())
	for _, c := range cleaners {
		if cl, ok := c.(cache.Cleaner); ok {
			j.Register(cl)
		}
	}
	go j.Run(ctx, 10*time.Minute)
	return j
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Fatal logs err and exits.
func Fatal(logger *applog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{applog.FieldError, err}, args...)...)
	os.Exit(1)
}
