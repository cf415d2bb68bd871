package etl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/l10n-sentinel/internal/audit"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/filter"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

type memoryAudit struct {
	mu      sync.Mutex
	batches [][]audit.Entry
}

func (m *memoryAudit) RecordBatch(ctx context.Context, entries []audit.Entry) (*audit.BatchInsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, entries)
	return &audit.BatchInsertResult{Inserted: int64(len(entries))}, nil
}

func newPipeline(t *testing.T, cfg config.ETLConfig, auditWriter AuditWriter) *Pipeline {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create tokenizer: %v", err)
	}
	return NewPipeline(filter.New(nil, tok), auditWriter, cfg, zap.NewNop())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func readJSONL(t *testing.T, path string) []OutputRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer file.Close()

	var records []OutputRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec OutputRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Failed to decode output line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"strings.csv":      FormatCSV,
		"strings.CSV":      FormatCSV,
		"strings.parquet":  FormatParquet,
		"strings.jsonl":    FormatJSONL,
		"strings.json":     FormatJSONL,
		"strings":          FormatCSV,
		"dir.v2/export.tx": FormatCSV,
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestProcessCSVToJSONL(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "strings.csv", strings.Join([]string{
		"key,locale,text",
		"home.greeting,de-DE,\"Hello {{name}}, visit https://example.com\"",
		"profile.ssn,de-DE,My SSN is 123-45-6789",
		",de-DE,missing key",
		"home.title,not a locale,Welcome",
		"home.brace,fr-FR,Total {count",
	}, "\n")+"\n")
	output := filepath.Join(dir, "verdicts.jsonl")

	auditWriter := &memoryAudit{}
	cfg := config.GetDefaults().ETL
	cfg.BatchSize = 2
	cfg.WorkerCount = 3
	p := newPipeline(t, cfg, auditWriter)

	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Failed to process file: %v", err)
	}

	if result.TotalRecords != 3 || result.Passed != 1 || result.Blocked != 1 || result.Failed != 2 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if result.InvalidRecords != 2 {
		t.Errorf("Expected 2 invalid records, got %d", result.InvalidRecords)
	}
	if result.AuditWrites != 3 {
		t.Errorf("Expected 3 audit writes, got %d", result.AuditWrites)
	}

	records := readJSONL(t, output)
	if len(records) != 3 {
		t.Fatalf("Expected 3 output records, got %d", len(records))
	}

	if records[0].Key != "home.greeting" || !records[0].Passed || records[0].TokenizedText != "Hello ⟦TI001⟧, visit ⟦TU002⟧" || records[0].TokenCount != 2 {
		t.Errorf("Unexpected passed record: %+v", records[0])
	}
	if records[1].Passed || records[1].BlockReason != "ssn" || records[1].TokenizedText != "" {
		t.Errorf("Unexpected blocked record: %+v", records[1])
	}
	if len(records[2].ErrorCodes) != 1 || records[2].ErrorCodes[0] != string(filter.CodeMalformedMarkup) {
		t.Errorf("Expected malformed_markup, got %+v", records[2])
	}

	raw, _ := os.ReadFile(output)
	if strings.Contains(string(raw), "123-45-6789") {
		t.Error("Output must not contain blocked text")
	}

	for _, batch := range auditWriter.batches {
		for _, entry := range batch {
			if entry.Source != audit.SourceETL || entry.RequestID != result.RunID {
				t.Errorf("Unexpected audit entry: %+v", entry)
			}
		}
	}
}

func TestProcessJSONL(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "strings.jsonl",
		`{"key":"a","locale":"ja-JP","text":"Email me@example.com"}`+"\n"+
			`{"key":"b","text":"Plain text"}`+"\n")
	output := filepath.Join(dir, "out.jsonl")

	cfg := config.GetDefaults().ETL
	cfg.RecordAudit = false
	auditWriter := &memoryAudit{}
	p := newPipeline(t, cfg, auditWriter)

	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Failed to process file: %v", err)
	}
	if result.TotalRecords != 2 || result.Passed != 2 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if len(auditWriter.batches) != 0 {
		t.Error("Audit must be skipped when record_audit is off")
	}

	records := readJSONL(t, output)
	if records[0].TokenizedText != "Email ⟦TE001⟧" {
		t.Errorf("Unexpected tokenized text %q", records[0].TokenizedText)
	}
}

func TestProcessJSONLSyntaxError(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "broken.jsonl", `{"key":"a","text":"ok"}`+"\n"+`{"key":`+"\n")

	p := newPipeline(t, config.GetDefaults().ETL, nil)
	result, err := p.ProcessFile(context.Background(), input, filepath.Join(dir, "out.jsonl"))
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if result.TotalRecords != 1 {
		t.Errorf("Records before the error should be processed, got %d", result.TotalRecords)
	}
}

func TestProcessParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "strings.parquet")

	file, err := os.Create(input)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}
	writer := parquet.NewGenericWriter[SourceRecord](file)
	if _, err := writer.Write([]SourceRecord{
		{Key: "checkout.cta", Locale: "es-ES", Text: "Pay at {store}"},
		{Key: "support.card", Locale: "es-ES", Text: "Card 4111 1111 1111 1111"},
	}); err != nil {
		t.Fatalf("Failed to write input rows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	file.Close()

	output := filepath.Join(dir, "verdicts.parquet")
	p := newPipeline(t, config.GetDefaults().ETL, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("Failed to process file: %v", err)
	}
	if result.TotalRecords != 2 || result.Blocked != 1 {
		t.Errorf("Unexpected counts: %+v", result)
	}

	out, err := os.Open(output)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer out.Close()

	reader := parquet.NewReader(out)
	defer reader.Close()

	var records []OutputRecord
	for {
		var rec OutputRecord
		if err := reader.Read(&rec); err != nil {
			break
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 output rows, got %d", len(records))
	}
	if records[0].TokenizedText != "Pay at ⟦TC001⟧" || !records[0].Passed {
		t.Errorf("Unexpected first row: %+v", records[0])
	}
	if records[1].BlockReason != "credit_card" || records[1].Passed {
		t.Errorf("Unexpected second row: %+v", records[1])
	}
}

func TestProcessCSVRequiresColumns(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "strings.csv", "id,body\n1,hello\n")

	p := newPipeline(t, config.GetDefaults().ETL, nil)
	if _, err := p.ProcessFile(context.Background(), input, filepath.Join(dir, "out.jsonl")); err == nil {
		t.Error("Expected error for missing key/text columns")
	}
}

// failingReader serves data and then fails every read with err
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(b []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(b, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestCSVReaderStopsOnReadError(t *testing.T) {
	diskErr := errors.New("disk I/O error")
	src := &failingReader{
		data: []byte("key,text\na,hello\nb,\"bad\"x\nc,world\nd,trunc"),
		err:  diskErr,
	}

	cfg := config.GetDefaults().ETL
	cfg.BatchSize = 10
	p := newPipeline(t, cfg, nil)

	readBatch, err := p.csvReader(src)
	if err != nil {
		t.Fatalf("Failed to read CSV header: %v", err)
	}

	type readResult struct {
		batch []SourceRecord
		err   error
	}
	done := make(chan readResult, 1)
	go func() {
		batch, err := readBatch()
		done <- readResult{batch, err}
	}()

	var got readResult
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CSV reader did not return after a read error")
	}

	if !errors.Is(got.err, diskErr) {
		t.Errorf("Expected wrapped read error, got %v", got.err)
	}
	if got.err == io.EOF {
		t.Error("Read error must not be reported as EOF")
	}
	if len(got.batch) != 2 || got.batch[0].Key != "a" || got.batch[1].Key != "c" {
		t.Errorf("Expected rows a and c before the failure, got %+v", got.batch)
	}
	if invalid := p.GetStats().RecordsInvalid; invalid != 1 {
		t.Errorf("Expected the malformed row to count as invalid once, got %d", invalid)
	}
}

func TestProcessFileCancelled(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "strings.csv", "key,text\na,hello\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t, config.GetDefaults().ETL, nil)
	if _, err := p.ProcessFile(ctx, input, filepath.Join(dir, "out.jsonl")); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
