package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/l10n-sentinel/internal/audit"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/etl"
	"github.com/raaihank/l10n-sentinel/internal/filter"
	"github.com/raaihank/l10n-sentinel/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input file of source strings (CSV, JSONL or Parquet)")
		outputFile = flag.String("output", "", "Output file for verdicts (.parquet or JSONL); defaults to <input>.verdicts.jsonl")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (overrides config)")
		workers    = flag.Int("workers", 0, "Number of filter workers (overrides config)")
		noAudit    = flag.Bool("no-audit", false, "Do not record verdicts in the audit store")
		showStats  = flag.Bool("stats", false, "Show audit statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input strings.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input strings.parquet --output verdicts.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.ETL.BatchSize = *batchSize
	}
	if *workers > 0 {
		cfg.ETL.WorkerCount = *workers
	}
	if *noAudit {
		cfg.ETL.RecordAudit = false
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting l10n-sentinel ETL pipeline",
		zap.String("version", "0.1.0"),
		zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	var store *audit.Store
	if cfg.Audit.Enabled && (cfg.ETL.RecordAudit || *showStats) {
		store, err = audit.NewStore(cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to create audit schema", zap.Error(err))
		}
	}

	if *showStats {
		if err := showAuditStats(ctx, store); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	output := *outputFile
	if output == "" {
		output = strings.TrimSuffix(*inputFile, filepath.Ext(*inputFile)) + ".verdicts.jsonl"
	}

	if err := processDataset(ctx, cfg, store, *inputFile, output, log); err != nil {
		log.Fatal("ETL processing failed", zap.Error(err))
	}

	log.Info("ETL pipeline completed successfully")
}

// processDataset filters the input file into output
func processDataset(ctx context.Context, cfg *config.Config, store *audit.Store, inputFile, outputFile string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	f, _, err := filter.NewFromConfig(cfg, log)
	if err != nil {
		return err
	}

	var auditWriter etl.AuditWriter
	if store != nil && cfg.ETL.RecordAudit {
		auditWriter = store
	}

	pipeline := etl.NewPipeline(f, auditWriter, cfg.ETL, log.WithComponent("etl").Logger)

	result, err := pipeline.ProcessFile(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	rate := 0.0
	if secs := result.Duration.Seconds(); secs > 0 {
		rate = float64(result.TotalRecords) / secs
	}
	log.Info("Dataset processing completed",
		zap.String("run_id", result.RunID),
		zap.String("input", inputFile),
		zap.String("output", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("passed", result.Passed),
		zap.Int64("failed", result.Failed),
		zap.Int64("blocked", result.Blocked),
		zap.Int64("invalid_records", result.InvalidRecords),
		zap.Int64("audit_writes", result.AuditWrites),
		zap.Duration("total_duration", result.Duration),
		zap.Float64("records_per_second", rate))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}

	return nil
}

// showAuditStats prints verdict totals from the audit store
func showAuditStats(ctx context.Context, store *audit.Store) error {
	if store == nil {
		return fmt.Errorf("audit store is not enabled")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get audit stats: %w", err)
	}

	fmt.Printf("\n=== l10n-sentinel Audit Statistics ===\n")
	fmt.Printf("Total Verdicts:     %d\n", stats.Total)
	if stats.Total > 0 {
		fmt.Printf("Passed:             %d (%.1f%%)\n", stats.Passed, float64(stats.Passed)/float64(stats.Total)*100)
		fmt.Printf("Blocked:            %d (%.1f%%)\n", stats.Blocked, float64(stats.Blocked)/float64(stats.Total)*100)
	}
	for reason, count := range stats.ByReason {
		fmt.Printf("  %-16s  %d\n", reason+":", count)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to get recent verdicts: %w", err)
	}
	if len(recent) > 0 {
		fmt.Printf("\n=== Recent Verdicts ===\n")
		for _, e := range recent {
			fmt.Printf("%s  %-4s  %-24s  %-6s  passed=%t  codes=%v\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Source, e.SourceKey, e.Locale, e.Passed, []string(e.ErrorCodes))
		}
	}

	return nil
}
