// Package etl runs the content filter over exported source-string files
// and writes one verdict per record.
package etl

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/raaihank/l10n-sentinel/internal/audit"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/filter"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// AuditWriter stores verdicts in bulk
type AuditWriter interface {
	RecordBatch(ctx context.Context, entries []audit.Entry) (*audit.BatchInsertResult, error)
}

// Pipeline filters source-string datasets in batches
type Pipeline struct {
	filter   *filter.Filter
	audit    AuditWriter
	config   config.ETLConfig
	logger   *zap.Logger
	validate *validator.Validate
	stats    *ProcessingStats
	mu       sync.RWMutex
}

// NewPipeline creates a new ETL pipeline. auditWriter may be nil.
func NewPipeline(f *filter.Filter, auditWriter AuditWriter, cfg config.ETLConfig, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &Pipeline{
		filter:   f,
		audit:    auditWriter,
		config:   cfg,
		logger:   logger,
		validate: validator.New(),
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}
}

// ProcessFile filters every record of inputPath (CSV, JSONL or Parquet) and
// writes verdicts to outputPath (Parquet for a .parquet extension, JSONL
// otherwise)
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	result := &ProcessingResult{RunID: uuid.NewString()}
	log := p.logger.With(zap.String("run_id", result.RunID))

	inFormat := DetectFileFormat(inputPath)
	log.Info("Starting ETL pipeline",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("format", string(inFormat)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	start := time.Now()
	p.resetStats()

	in, err := os.Open(inputPath)
	if err != nil {
		return result, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	var readBatch func() ([]SourceRecord, error)
	switch inFormat {
	case FormatCSV:
		readBatch, err = p.csvReader(in)
	case FormatJSONL:
		readBatch = p.jsonlReader(in)
	case FormatParquet:
		var closeReader func() error
		readBatch, closeReader = p.parquetReader(in)
		defer closeReader()
	default:
		err = fmt.Errorf("unsupported file format: %s", inFormat)
	}
	if err != nil {
		return result, err
	}

	out, err := newRecordWriter(outputPath)
	if err != nil {
		return result, err
	}

	if err := p.processBatches(ctx, log, readBatch, out, result); err != nil {
		out.Close()
		return result, err
	}
	if err := out.Close(); err != nil {
		return result, fmt.Errorf("failed to finish output file: %w", err)
	}

	result.Duration = time.Since(start)
	result.InvalidRecords = p.GetStats().RecordsInvalid
	log.Info("ETL pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("passed", result.Passed),
		zap.Int64("failed", result.Failed),
		zap.Int64("blocked", result.Blocked),
		zap.Int64("invalid_records", result.InvalidRecords),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("filter_time", result.FilterTime),
		zap.Duration("audit_time", result.AuditTime))

	return result, nil
}

// csvReader reads records by header name. key and text columns are
// required, locale is optional.
func (p *Pipeline) csvReader(r io.Reader) (func() ([]SourceRecord, error), error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	reader.FieldsPerRecord = len(header)

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	keyCol, hasKey := columns["key"]
	textCol, hasText := columns["text"]
	if !hasKey || !hasText {
		return nil, fmt.Errorf("CSV header must contain key and text columns, got %v", header)
	}
	localeCol, hasLocale := columns["locale"]

	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return func() ([]SourceRecord, error) {
		var batch []SourceRecord
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				p.logger.Warn("Failed to parse CSV record", zap.Error(err))
				p.countInvalid()
				continue
			}
			if err != nil {
				return batch, fmt.Errorf("failed to read CSV record: %w", err)
			}

			record := SourceRecord{Key: strings.TrimSpace(row[keyCol]), Text: row[textCol]}
			if hasLocale {
				record.Locale = strings.TrimSpace(row[localeCol])
			}
			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}
		return batch, nil
	}, nil
}

// jsonlReader reads one JSON object per line
func (p *Pipeline) jsonlReader(r io.Reader) func() ([]SourceRecord, error) {
	decoder := json.NewDecoder(bufio.NewReader(r))

	return func() ([]SourceRecord, error) {
		var batch []SourceRecord
		for len(batch) < p.config.BatchSize {
			var record SourceRecord
			err := decoder.Decode(&record)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// The decoder cannot resync after a syntax error
				return batch, fmt.Errorf("failed to decode JSONL record: %w", err)
			}
			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}
		return batch, nil
	}
}

func (p *Pipeline) parquetReader(f *os.File) (func() ([]SourceRecord, error), func() error) {
	reader := parquet.NewReader(f)

	return func() ([]SourceRecord, error) {
		var batch []SourceRecord
		for len(batch) < p.config.BatchSize {
			var record SourceRecord
			err := reader.Read(&record)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}
		return batch, nil
	}, reader.Close
}

// processBatches filters and writes batches until the reader is drained
func (p *Pipeline) processBatches(ctx context.Context, log *zap.Logger, readBatch func() ([]SourceRecord, error), out recordWriter, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, readErr := readBatch()
		if len(batch) > 0 {
			if err := p.processBatch(ctx, log, batch, out, result); err != nil {
				return err
			}
		}
		if readErr != nil {
			return readErr
		}
		if len(batch) == 0 {
			return nil
		}
	}
}

// processBatch filters one batch with a worker pool, keeping input order
func (p *Pipeline) processBatch(ctx context.Context, log *zap.Logger, batch []SourceRecord, out recordWriter, result *ProcessingResult) error {
	filterStart := time.Now()
	verdicts := p.filterBatch(batch)
	result.FilterTime += time.Since(filterStart)

	records := make([]OutputRecord, len(batch))
	for i, v := range verdicts {
		records[i] = toOutputRecord(batch[i], v)
		switch {
		case v.Passed:
			result.Passed++
		case v.PiiScan.Blocked:
			result.Blocked++
			result.Failed++
		default:
			result.Failed++
		}
	}

	if err := out.Write(records); err != nil {
		return fmt.Errorf("failed to write output batch: %w", err)
	}

	if p.audit != nil && p.config.RecordAudit {
		auditStart := time.Now()
		entries := make([]audit.Entry, len(batch))
		for i, v := range verdicts {
			entries[i] = audit.NewEntry(audit.SourceETL, result.RunID, batch[i].Key, batch[i].Locale, batch[i].Text, v)
		}
		inserted, err := p.audit.RecordBatch(ctx, entries)
		if err != nil {
			log.Error("Failed to record audit batch", zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.AuditWrites += inserted.Inserted
		}
		result.AuditTime += time.Since(auditStart)
	}

	previous := result.TotalRecords
	result.TotalRecords += int64(len(batch))
	p.updateStats(batch, result)

	if n := int64(p.config.ProgressReport); n > 0 && previous/n != result.TotalRecords/n {
		p.reportProgress(log, result)
	}
	return nil
}

// filterBatch checks every record of batch on WorkerCount goroutines
func (p *Pipeline) filterBatch(batch []SourceRecord) []filter.ContentFilterResult {
	verdicts := make([]filter.ContentFilterResult, len(batch))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.config.WorkerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				verdicts[i] = p.filter.Check(batch[i].Text)
			}
		}()
	}

	for i := range batch {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return verdicts
}

func toOutputRecord(src SourceRecord, v filter.ContentFilterResult) OutputRecord {
	rec := OutputRecord{
		Key:         src.Key,
		Locale:      src.Locale,
		Passed:      v.Passed,
		BlockReason: string(v.PiiScan.BlockReason),
		PiiTypes:    make([]string, len(v.PiiScan.PiiTypes)),
		ErrorCodes:  v.Codes(),
	}
	for i, t := range v.PiiScan.PiiTypes {
		rec.PiiTypes[i] = string(t)
	}
	if v.Tokenization != nil {
		rec.TokenCount = int64(v.Tokenization.TokenMap.Len())
		if v.Passed {
			rec.TokenizedText = v.Tokenization.TokenizedText
		}
	}
	return rec
}

// validateRecord checks a record's key and locale
func (p *Pipeline) validateRecord(record SourceRecord) bool {
	p.mu.Lock()
	p.stats.RecordsRead++
	p.mu.Unlock()

	if err := p.validate.Struct(record); err != nil {
		p.logger.Debug("Invalid record", zap.String("key", record.Key), zap.Error(err))
		p.countInvalid()
		return false
	}
	return true
}

func (p *Pipeline) countInvalid() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.RecordsInvalid++
}

func (p *Pipeline) updateStats(batch []SourceRecord, result *ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.CurrentBatch++
	p.stats.RecordsValid += int64(len(batch))
	p.stats.RecordsBlocked = result.Blocked
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(p.stats.RecordsValid) / elapsed
	}
	result.InvalidRecords = p.stats.RecordsInvalid
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(log *zap.Logger, result *ProcessingResult) {
	stats := p.GetStats()
	log.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("passed", result.Passed),
		zap.Int64("blocked", result.Blocked),
		zap.Int64("invalid_records", stats.RecordsInvalid),
		zap.Float64("rate_per_sec", stats.ProcessingRate),
		zap.Duration("elapsed", time.Since(stats.StartTime)))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
