package main

import (
	"os"

	"gastos/internal/cli"
	"gastos/internal/log"
	"gastos/internal/ports"
	gsheet "gastos/internal/sheets/google"
	"gastos/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting events-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the events worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	be := cli.InitBackend(ctx, cfg, logger)
	defer cli.CloseBackend(be, logger)
	if be.AMQP == nil {
		logger.Error("AMQP broker unreachable", "exchange", cfg.AMQPExchange)
		os.Exit(1)
	}

	// The mirror is optional: without it events are acknowledged and dropped.
	var mirror ports.Mirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled, no GOOGLE_SPREADSHEET_ID provided")
	}

	// A memory store lives inside the server process, which sweeps it there.
	var sweeper worker.Sweeper
	if cfg.DataBackend != "memory" {
		sweeper = cli.NewReconciler(cfg, be, logger)
	} else {
		logger.Info("Reconciler disabled for the memory backend")
	}

	if err := worker.NewEventWorker(mirror, logger).Run(ctx, be.AMQP, sweeper); err != nil {
		logger.Error("Events worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Events worker stopped gracefully")
}
