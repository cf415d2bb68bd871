package cache

import (
	"errors"
	"time"

	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// Session is a stored tokenization awaiting restoration
type Session struct {
	ID           string                       `json:"id"`
	Tokenization tokenizer.TokenizationResult `json:"tokenization"`
	CreatedAt    time.Time                    `json:"created_at"`
	TTL          int64                        `json:"ttl"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Sessions    int64   `json:"sessions"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
