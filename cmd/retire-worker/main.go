package main

import (
	"context"
	"errors"
	"os"

	"retire/internal/amqp"
	"retire/internal/cli"
	"retire/internal/config"
	"retire/internal/diagnostics"
	gsheet "retire/internal/sheets/google"
	"retire/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(config.Load(), nil)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting retire-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Google Sheets export is optional.
	var export diagnostics.Sink
	if cfg.SheetsEnabled() {
		if err := cfg.ValidateSheets(); err != nil {
			logger.Error("Invalid Google Sheets configuration", "error", err)
			os.Exit(1)
		}
		sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		export = sheetsClient
		logger.Info("Google Sheets export enabled", "sheet", sheetsClient.SheetName())
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	eventWorker := worker.NewEventWorker(sqliteRepo, export, logger)

	ctx, stop, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("Failed to close AMQP client", "error", err)
		}
		if err := eventWorker.Close(); err != nil {
			logger.Error("Failed to close exporter", "error", err)
		}
		stats := eventWorker.Stats()
		logger.Info("Worker stopped",
			"stored", stats.Stored,
			"exported", stats.Exported,
			"failed", stats.Failed)
	})

	if err := eventWorker.StartupReport(ctx); err != nil {
		logger.Error("Failed to read event store", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeCalculationEvents(ctx, eventWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		stop()
	}()

	cli.WaitForShutdown(ctx, done)
}
