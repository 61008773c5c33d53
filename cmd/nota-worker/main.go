package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"nota/internal/amqp"
	"nota/internal/cli"
	"nota/internal/config"
	"nota/internal/ledger"
	applog "nota/internal/log"
	"nota/internal/storage"
	"nota/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting nota-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)
	// the worker always writes to Google Sheets
	cfg.DataBackend = config.BackendSheets

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	journal := cli.InitJournal(logger, cfg.SQLiteDBPath)
	defer journal.Close()

	wb, err := cli.OpenWorkbook(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to open ledger workbook", err, "workbook", cfg.LedgerWorkbookName)
	}
	router := ledger.NewRouter(wb, ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Slog()))
	routeWorker := worker.NewRouteWorker(journal, router, cfg.SyncBatchSize, logger.Slog())

	g, gctx := errgroup.WithContext(ctx)
	cli.StartJanitor(gctx, logger, wb)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()

		g.Go(func() error {
			return client.ConsumeReceiptRoutes(gctx, routeWorker.HandleRouteMessage)
		})
	} else {
		logger.Info("No AMQP URL configured, relying on the pending sweep only")
	}

	g.Go(func() error {
		return routeWorker.Run(gctx, cfg.SyncInterval)
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats, err := journal.Stats(gctx)
				if err != nil {
					logger.Warn("Journal stats unavailable", applog.FieldError, err)
					continue
				}
				logger.Info("Journal status",
					storage.StatusPending, stats[storage.StatusPending],
					storage.StatusRouting, stats[storage.StatusRouting],
					storage.StatusSynced, stats[storage.StatusSynced],
					storage.StatusError, stats[storage.StatusError])
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		cli.Fatal(logger, "Worker stopped with error", err)
	}
	logger.Info("nota-worker stopped")
}
