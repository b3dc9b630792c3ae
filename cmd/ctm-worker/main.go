package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cashtimachann/internal/amqp"
	"cashtimachann/internal/backend"
	"cashtimachann/internal/cli"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
	"cashtimachann/internal/sheets"
	gsheet "cashtimachann/internal/sheets/google"
	"cashtimachann/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting Cash Ti Machann worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	book := recipients.NewBook(repo, logger)

	var exporter sheets.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	var hydrator *services.HydrationProcessor
	if cfg.WorkerAPIToken != "" {
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
			os.Exit(1)
		}
		result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
		if err != nil {
			logger.Error("Failed to initialize gateway", applog.FieldError, err.Error())
			os.Exit(1)
		}
		if result.Cleanup != nil {
			defer result.Cleanup()
		}
		hydrator = services.NewHydrationProcessor(book,
			services.NewDirectory(result.Gateway, cfg.WorkerAPIToken),
			services.HydrationProcessorConfig{
				PollInterval: cfg.HydrateInterval,
				BatchSize:    cfg.HydrateBatchSize,
			}, logger)
	} else {
		logger.Info("WORKER_API_TOKEN not set; recipient name hydration disabled")
	}

	events := worker.NewEventWorker(book, exporter, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if hydrator == nil {
			return
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hydrator.Stop(stopCtx); err != nil {
			logger.Warn("Hydration processor stop failed", applog.FieldError, err.Error())
		}
	})

	if hydrator != nil {
		if err := hydrator.Start(ctx); err != nil {
			logger.Error("Failed to start hydration processor", applog.FieldError, err.Error())
			os.Exit(1)
		}
	}

	go func() {
		if err := amqpClient.Consume(ctx, events.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err.Error())
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
