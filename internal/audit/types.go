package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/lib/pq"
	"github.com/raaihank/l10n-sentinel/internal/filter"
)

// Entry is one filter verdict. The submitted text itself is never stored,
// only its SHA-256 hash.
type Entry struct {
	ID          int64          `db:"id" json:"id"`
	RequestID   string         `db:"request_id" json:"request_id"`
	Source      string         `db:"source" json:"source"`
	TextHash    string         `db:"text_hash" json:"text_hash"`
	SourceKey   string         `db:"source_key" json:"source_key"`
	Locale      string         `db:"locale" json:"locale"`
	Passed      bool           `db:"passed" json:"passed"`
	Blocked     bool           `db:"blocked" json:"blocked"`
	BlockReason string         `db:"block_reason" json:"block_reason"`
	PiiTypes    pq.StringArray `db:"pii_types" json:"pii_types"`
	TokenCount  int            `db:"token_count" json:"token_count"`
	ErrorCodes  pq.StringArray `db:"error_codes" json:"error_codes"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// Sources recorded in Entry.Source
const (
	SourceAPI = "api"
	SourceETL = "etl"
)

// NewEntry summarises a verdict for storage
func NewEntry(source, requestID, key, locale, text string, result filter.ContentFilterResult) Entry {
	entry := Entry{
		RequestID:   requestID,
		Source:      source,
		TextHash:    HashText(text),
		SourceKey:   key,
		Locale:      locale,
		Passed:      result.Passed,
		Blocked:     result.PiiScan.Blocked,
		BlockReason: string(result.PiiScan.BlockReason),
		PiiTypes:    pq.StringArray{},
		ErrorCodes:  pq.StringArray(result.Codes()),
	}
	for _, t := range result.PiiScan.PiiTypes {
		entry.PiiTypes = append(entry.PiiTypes, string(t))
	}
	if result.Tokenization != nil {
		entry.TokenCount = result.Tokenization.TokenMap.Len()
	}
	return entry
}

// HashText returns the hex SHA-256 of text
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Stats summarises the audit log
type Stats struct {
	Total    int64            `json:"total"`
	Passed   int64            `json:"passed"`
	Blocked  int64            `json:"blocked"`
	ByReason map[string]int64 `json:"by_reason"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}
