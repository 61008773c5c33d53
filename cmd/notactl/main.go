// Command notactl records receipts from the command line: scan image files,
// add a receipt by hand, or show which ledger tab a date routes to.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nota/internal/archive"
	"nota/internal/cli"
	"nota/internal/config"
	"nota/internal/ledger"
	applog "nota/internal/log"
	"nota/internal/services"
	"nota/internal/storage"
)

// errFailures makes the process exit non-zero after a partially failed run.
var errFailures = errors.New("some receipts failed")

// app is what the subcommands run against.
type app struct {
	cfg      *config.Config
	logger   *applog.Logger
	receipts *services.ReceiptService
	gcs      *archive.GCS
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type appFactory func(ctx context.Context) (*app, error)

// newApp wires the receipt service the same way the server does, minus the
// in-process sweep: journaled receipts are left for nota-worker.
func newApp(ctx context.Context) (*app, error) {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(envOr("LOG_LEVEL", "warn")),
		Component: "notactl",
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	cats, err := cli.Categories(cfg, logger)
	if err != nil {
		return nil, err
	}
	extractor, err := cli.NewExtractor(ctx, cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	archiver, closeArchive, err := cli.NewArchiver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeArchive)
	if g, ok := archiver.(*archive.GCS); ok {
		a.gcs = g
	}

	var recorder services.Recorder
	switch cfg.DataBackend {
	case config.BackendSQLite:
		journal, err := storage.NewJournal(cfg.SQLiteDBPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = journal.Close() })
		recorder = services.NewOutboxRecorder(journal, nil)
	default:
		wb, err := cli.OpenWorkbook(ctx, cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		recorder = services.NewLedgerRecorder(ledger.NewRouter(wb, ledger.WithLogger(logger.Slog())))
	}

	a.receipts = services.NewReceiptService(extractor, recorder, archiver, logger.Slog())
	return a, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd(factory appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "notactl",
		Short:         "Record shopping receipts into the monthly ledger",
		Long:          `notactl extracts receipts from images with a vision model, or takes them from flags, and appends their items to the ledger workbook, one tab per month.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScanCmd(factory), newAddCmd(factory), newTitleCmd())
	return root
}

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd(newApp).ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
