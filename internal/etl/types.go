package etl

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceRecord is one source string awaiting a translation verdict
type SourceRecord struct {
	Key    string `parquet:"key" json:"key" validate:"required,max=256"`
	Locale string `parquet:"locale" json:"locale" validate:"omitempty,bcp47_language_tag"`
	Text   string `parquet:"text" json:"text"`
}

// OutputRecord is the verdict written for one source record. Text of
// records that did not pass is never written.
type OutputRecord struct {
	Key           string   `parquet:"key" json:"key"`
	Locale        string   `parquet:"locale" json:"locale,omitempty"`
	Passed        bool     `parquet:"passed" json:"passed"`
	TokenizedText string   `parquet:"tokenized_text" json:"tokenized_text,omitempty"`
	TokenCount    int64    `parquet:"token_count" json:"token_count"`
	BlockReason   string   `parquet:"block_reason" json:"block_reason,omitempty"`
	PiiTypes      []string `parquet:"pii_types" json:"pii_types"`
	ErrorCodes    []string `parquet:"error_codes" json:"error_codes"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	RunID          string        `json:"run_id"`
	TotalRecords   int64         `json:"total_records"`
	Passed         int64         `json:"passed"`
	Failed         int64         `json:"failed"`
	Blocked        int64         `json:"blocked"`
	InvalidRecords int64         `json:"invalid_records"`
	AuditWrites    int64         `json:"audit_writes"`
	Duration       time.Duration `json:"duration"`
	FilterTime     time.Duration `json:"filter_time"`
	AuditTime      time.Duration `json:"audit_time"`
	Errors         []string      `json:"errors,omitempty"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsValid   int64     `json:"records_valid"`
	RecordsInvalid int64     `json:"records_invalid"`
	RecordsBlocked int64     `json:"records_blocked"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension. Unknown extensions
// are read as CSV.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".json", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}
