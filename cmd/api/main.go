package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/flowrunner/internal/api"
	"github.com/dvloznov/flowrunner/internal/api/handlers"
	"github.com/dvloznov/flowrunner/internal/config"
	"github.com/dvloznov/flowrunner/internal/extraction"
	"github.com/dvloznov/flowrunner/internal/jobs"
	"github.com/dvloznov/flowrunner/internal/jobs/inmemory"
	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/pipeline"
	"github.com/dvloznov/flowrunner/internal/telegram"
)

func main() {
	var (
		configDir = flag.String("config", ".", "Directory holding flowrunner.yaml")
		port      = flag.String("port", "", "HTTP server port (overrides FLOWRUNNER_PORT)")
	)
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel), false)
	ctx := logger.WithContext(context.Background(), log)

	if !cfg.HasTelegramToken() {
		log.Warn().Msg("No Telegram bot token configured - every submission will fail at the stage step")
	}

	// Ledger
	store := ledger.NewStore()
	if err := store.Ensure(cfg.CSVPath); err != nil {
		log.Fatal().Err(err).Str("csv_path", cfg.CSVPath).Msg("Failed to prepare ledger")
	}

	// Extraction
	extractor, err := extraction.New(ctx, extraction.Settings{
		Kind:         cfg.Extractor,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		Timeout:      cfg.ExtractTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Str("extractor", cfg.Extractor).Msg("Failed to create extractor")
	}

	stager := telegram.NewClient(telegram.Config{
		Token:      cfg.TelegramBotToken,
		APIBase:    cfg.TelegramAPIBase,
		StagingDir: cfg.StagingDir,
		Timeout:    cfg.FetchTimeout,
		RPS:        cfg.TelegramRPS,
	})

	orchestrator := pipeline.NewOrchestrator(stager, extractor, store, cfg.CSVPath)

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.WorkerCount, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		ingestJob, ok := job.(*jobs.IngestReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log := logger.FromContext(ctx)
		log.Info().
			Str("file_id", ingestJob.File.FileID).
			Int64("update_id", ingestJob.UpdateID).
			Msg("Processing receipt submission")

		result, err := orchestrator.Run(ctx, ingestJob.File, ingestJob.Caption, ingestJob.Context)
		if err != nil {
			ingestJob.FailedStage = string(pipeline.FailedStage(err))
			return err
		}

		ingestJob.LedgerRowIndex = result.LedgerRowIndex
		log.Info().
			Int("row_index", result.LedgerRowIndex).
			Int("item_count", len(result.Payload.Items)).
			Msg("Receipt submission processed")

		return nil
	}

	go func() {
		log.Info().Int("worker_count", cfg.WorkerCount).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	router := api.NewRouter(api.Handlers{
		Webhook:  handlers.NewWebhookHandler(jobQueue, cfg.DedupeTTL, log),
		Receipts: handlers.NewReceiptsHandler(store, cfg.CSVPath, log),
		Run:      handlers.NewRunHandler(orchestrator, cfg.CSVPath, log),
		Jobs:     handlers.NewJobsHandler(jobStore, log),
	}, log, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + cfg.ExtractTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("csv_path", cfg.CSVPath).
			Str("extractor", cfg.Extractor).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs and let in-flight ones finish before cancelling.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
