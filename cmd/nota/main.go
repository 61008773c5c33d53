package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"nota/internal/amqp"
	"nota/internal/cli"
	"nota/internal/config"
	"nota/internal/core"
	apphttp "nota/internal/http"
	"nota/internal/ledger"
	applog "nota/internal/log"
	"nota/internal/services"
	"nota/internal/sheets"
	"nota/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	cats, err := cli.Categories(cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to load categories", err, "file", cfg.CategoriesFile)
	}

	extractor, err := cli.NewExtractor(ctx, cfg, cats, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize vision model", err, "model", cfg.GeminiModel)
	}

	archiver, closeArchive, err := cli.NewArchiver(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize receipt archive", err, "bucket", cfg.ReceiptArchiveBucket)
	}
	defer closeArchive()

	var (
		recorder  services.Recorder
		processor *services.SyncProcessor
		checks    = map[string]apphttp.ReadyCheck{}
		cleaners  []any
	)

	newRouter := func() *ledger.Router {
		wb, err := cli.OpenWorkbook(ctx, cfg, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to open ledger workbook", err, "workbook", cfg.LedgerWorkbookName)
		}
		cleaners = append(cleaners, wb)
		checks["ledger"] = ledgerCheck(wb)
		return ledger.NewRouter(wb, ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Slog()))
	}

	switch cfg.DataBackend {
	case config.BackendSQLite:
		journal := cli.InitJournal(logger, cfg.SQLiteDBPath)
		defer journal.Close()
		checks["journal"] = journal.Ping

		var publisher services.Publisher
		if cfg.AMQPURL != "" {
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				logger.Warn("AMQP broker unavailable", applog.FieldError, err)
			} else {
				defer client.Close()
				publisher = client
				checks["amqp"] = func(context.Context) error {
					if !client.Healthy() {
						return errors.New("not connected")
					}
					return nil
				}
			}
		}

		if publisher == nil {
			if cfg.HasSheetsCredentials() {
				routeWorker := worker.NewRouteWorker(journal, newRouter(), cfg.SyncBatchSize, logger.WithComponent(applog.ComponentWorker).Slog())
				processor = services.NewSyncProcessor(routeWorker, cfg.SyncInterval)
				if err := processor.Start(ctx); err != nil {
					cli.Fatal(logger, "Failed to start sync processor", err)
				}
			} else {
				logger.Warn("No broker and no Google credentials: receipts stay journaled until nota-worker runs")
			}
		}
		recorder = services.NewOutboxRecorder(journal, publisher)
	default:
		recorder = services.NewLedgerRecorder(newRouter())
	}

	receipts := services.NewReceiptService(extractor, recorder, archiver, logger.Slog())
	janitor := cli.StartJanitor(ctx, logger, cleaners...)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Receipts:       receipts,
		Categories:     cats,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger.Slog(),
		Checks:         checks,
		Janitor:        janitor,
	})
	srv.ReadTimeout = 60 * time.Second
	// a batch runs one model call per image
	srv.WriteTimeout = 5 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if processor != nil {
			if err := processor.Stop(shutdownCtx); err != nil {
				logger.Error("Sync processor shutdown error", applog.FieldError, err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	}()

	logger.Info("Starting nota server", "port", cfg.Port, "backend", cfg.DataBackend, "categories", len(cats))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err, "port", cfg.Port)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

// ledgerCheck verifies the workbook answers. A missing current-month tab is fine.
func ledgerCheck(wb sheets.Workbook) apphttp.ReadyCheck {
	return func(ctx context.Context) error {
		_, err := wb.Worksheet(ctx, core.TabTitle(time.Now()))
		if err != nil && !errors.Is(err, sheets.ErrWorksheetNotFound) {
			return err
		}
		return nil
	}
}
