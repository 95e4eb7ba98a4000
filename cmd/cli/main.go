package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/flowrunner/internal/bigquery"
	"github.com/dvloznov/flowrunner/internal/config"
	"github.com/dvloznov/flowrunner/internal/export"
	"github.com/dvloznov/flowrunner/internal/extraction"
	"github.com/dvloznov/flowrunner/internal/gcsuploader"
	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/notionsync"
	"github.com/dvloznov/flowrunner/internal/pipeline"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/dvloznov/flowrunner/internal/telegram"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("FLOWRUNNER_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel), false)

	switch os.Args[1] {
	case "ingest":
		runIngest(log, cfg)
	case "process":
		runProcess(log, cfg)
	case "list":
		runList(log, cfg)
	case "export-xlsx":
		runExportXLSX(log, cfg)
	case "backup":
		runBackup(log, cfg)
	case "sync-bigquery":
		runSyncBigQuery(log, cfg)
	case "sync-notion":
		runSyncNotion(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Flowrunner CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest         Stage a receipt (Telegram file id or GCS URI) and record it")
	fmt.Println("  process        Record a receipt from a local file")
	fmt.Println("  list           Print the ledger rows and per-currency totals")
	fmt.Println("  export-xlsx    Write the ledger to an Excel workbook")
	fmt.Println("  backup         Upload a timestamped copy of the ledger to GCS")
	fmt.Println("  sync-bigquery  Mirror new ledger rows into BigQuery")
	fmt.Println("  sync-notion    Mirror new ledger rows into a Notion database")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nSettings come from .env, flowrunner.yaml and FLOWRUNNER_* variables.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

func newOrchestrator(ctx context.Context, log zerolog.Logger, cfg *config.Config, stager pipeline.Stager) *pipeline.Orchestrator {
	extractor, err := extraction.New(ctx, extraction.Settings{
		Kind:         cfg.Extractor,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		Timeout:      cfg.ExtractTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Str("extractor", cfg.Extractor).Msg("Failed to create extractor")
	}
	return pipeline.NewOrchestrator(stager, extractor, ledger.NewStore(), cfg.CSVPath)
}

func printResult(result *receipt.IngestionResult) {
	fmt.Printf("Recorded %d item(s) at row %d of the ledger.\n", len(result.Payload.Items), result.LedgerRowIndex)
	for _, item := range result.Payload.Items {
		fmt.Printf("  %-24s %-12s %s %s\n", item.Label, item.Category, item.Amount.StringFixed(2), result.Payload.Currency)
	}
}

func runIngest(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fileID := fs.String("file-id", "", "Telegram file id of the receipt")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the receipt (gs://bucket/object)")
	caption := fs.String("caption", "", "Optional caption passed to the extractor")
	chatID := fs.Int64("chat-id", 0, "Chat id recorded with the submission")
	fs.Parse(os.Args[2:])

	if (*fileID == "") == (*gcsURI == "") {
		log.Fatal().Msg("Error: exactly one of --file-id or --gcs-uri is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var (
		stager pipeline.Stager
		ref    receipt.FileReference
	)
	if *gcsURI != "" {
		client, err := gcsuploader.NewClient(ctx, cfg.GCSCredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer client.Close()
		stager = gcsuploader.NewStager(client, cfg.StagingDir)
		ref = receipt.FileReference{FileID: *gcsURI, FileName: gcsuploader.ExtractFilenameFromGCSURI(*gcsURI)}
	} else {
		if !cfg.HasTelegramToken() {
			log.Warn().Msg("No Telegram bot token configured - staging will fail")
		}
		stager = telegram.NewClient(telegram.Config{
			Token:      cfg.TelegramBotToken,
			APIBase:    cfg.TelegramAPIBase,
			StagingDir: cfg.StagingDir,
			Timeout:    cfg.FetchTimeout,
			RPS:        cfg.TelegramRPS,
		})
		ref = receipt.FileReference{FileID: *fileID}
	}

	meta := receipt.Context{User: "cli"}
	if *chatID != 0 {
		meta.ChatID = chatID
	}

	result, err := newOrchestrator(ctx, log, cfg, stager).Run(ctx, ref, *caption, meta)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("stage", string(pipeline.FailedStage(err))).
			Msg("Ingestion failed")
	}

	printResult(result)
}

func runProcess(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local receipt image or PDF")
	caption := fs.String("caption", "", "Optional caption passed to the extractor")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	result, err := newOrchestrator(ctx, log, cfg, nil).Process(ctx, *filePath, *caption, receipt.Context{User: "cli"})
	if err != nil {
		log.Fatal().
			Err(err).
			Str("stage", string(pipeline.FailedStage(err))).
			Msg("Processing failed")
	}

	printResult(result)
}

func readLedger(log zerolog.Logger, cfg *config.Config) []ledger.Record {
	records, err := ledger.NewStore().Read(cfg.CSVPath)
	if err != nil {
		log.Fatal().Err(err).Str("csv_path", cfg.CSVPath).Msg("Failed to read ledger")
	}
	return records
}

func runList(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Show only the last N rows (0 = all)")
	fs.Parse(os.Args[2:])

	records := readLedger(log, cfg)
	summary := ledger.Summarize(records)

	shown := records
	if *limit > 0 && *limit < len(shown) {
		shown = shown[len(shown)-*limit:]
	}

	fmt.Printf("\n=== Ledger %s (%d rows) ===\n", cfg.CSVPath, summary.Count)
	for _, rec := range shown {
		fmt.Printf("%s  %-20s %-24s %-12s %12s %s\n",
			rec["timestamp"], rec["merchant"], rec["item"], rec["category"], rec["amount"], rec["currency"])
	}

	fmt.Println("\n=== Totals ===")
	for _, cur := range summary.Currencies() {
		fmt.Printf("%-5s %s\n", cur, summary.Totals[cur])
	}
	fmt.Println()
}

func runExportXLSX(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("export-xlsx", flag.ExitOnError)
	out := fs.String("out", "keuangan.xlsx", "Output workbook path")
	fs.Parse(os.Args[2:])

	records := readLedger(log, cfg)
	if err := export.WriteXLSX(*out, records); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Wrote %d rows to %s\n", len(records), *out)
}

func runBackup(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	bucket := fs.String("bucket", cfg.GCSBucket, "GCS bucket (defaults to FLOWRUNNER_GCS_BUCKET)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := gcsuploader.NewClient(ctx, cfg.GCSCredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer client.Close()

	uri, err := gcsuploader.BackupLedger(ctx, client, *bucket, cfg.CSVPath, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Backup failed")
	}

	fmt.Printf("Uploaded %s to %s\n", cfg.CSVPath, uri)
}

func runSyncBigQuery(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("sync-bigquery", flag.ExitOnError)
	project := fs.String("project", cfg.BigQueryProject, "GCP project (defaults to FLOWRUNNER_BIGQUERY_PROJECT)")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: --project or FLOWRUNNER_BIGQUERY_PROJECT is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	records := readLedger(log, cfg)

	repo, err := bigquery.NewRepository(ctx, *project, cfg.BigQueryDataset, cfg.BigQueryTable, cfg.GCSCredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	result, err := bigquery.NewExporter(repo).Export(ctx, records)
	if err != nil {
		log.Fatal().Err(err).Msg("BigQuery sync failed")
	}

	fmt.Printf("BigQuery sync completed: %d inserted, %d already present.\n", result.Inserted, result.Skipped)
}

func runSyncNotion(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	notionToken := fs.String("notion-token", cfg.NotionToken, "Notion API token")
	notionDBID := fs.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID")
	dryRun := fs.Bool("dry-run", false, "Preview changes without writing to Notion")
	prune := fs.Bool("prune", false, "Archive pages whose ledger row no longer exists")
	fs.Parse(os.Args[2:])

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	records := readLedger(log, cfg)

	result, err := notionsync.SyncRecords(ctx, notionsync.NewNotionClient(*notionToken), *notionDBID, records, notionsync.SyncOptions{
		DryRun: *dryRun,
		Prune:  *prune,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Notion sync failed")
	}

	fmt.Printf("Notion sync completed: %d created, %d skipped, %d archived, %d failed.\n",
		result.Created, result.Skipped, result.Archived, result.Failed)
}
