package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"go.uber.org/zap"
)

const insertColumns = `request_id, source, text_hash, source_key, locale, passed, blocked, block_reason, pii_types, token_count, error_codes`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS filter_audit (
		id           BIGSERIAL PRIMARY KEY,
		request_id   TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL,
		text_hash    CHAR(64) NOT NULL,
		source_key   TEXT NOT NULL DEFAULT '',
		locale       TEXT NOT NULL DEFAULT '',
		passed       BOOLEAN NOT NULL,
		blocked      BOOLEAN NOT NULL,
		block_reason TEXT NOT NULL DEFAULT '',
		pii_types    TEXT[] NOT NULL DEFAULT '{}',
		token_count  INTEGER NOT NULL DEFAULT 0,
		error_codes  TEXT[] NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_filter_audit_created_at ON filter_audit (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_filter_audit_text_hash ON filter_audit (text_hash)`,
}

// Store persists filter verdicts in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the audit database
func NewStore(cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Audit store connected",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return NewStoreWithDB(db, logger), nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the audit table and indexes if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply audit schema: %w", err)
		}
	}
	s.logger.Info("Audit schema ready")
	return nil
}

// Record inserts one entry and fills in its ID and timestamp
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO filter_audit (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := s.db.QueryRowxContext(ctx, query, entryArgs(entry)...).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to record audit entry",
			zap.Error(err),
			zap.String("request_id", entry.RequestID))
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	s.logger.Debug("Audit entry recorded",
		zap.Int64("id", entry.ID),
		zap.Bool("passed", entry.Passed))
	return nil
}

// RecordBatch inserts entries with a single statement
func (s *Store) RecordBatch(ctx context.Context, entries []Entry) (*BatchInsertResult, error) {
	if len(entries) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	const width = 11
	valueStrings := make([]string, 0, len(entries))
	valueArgs := make([]interface{}, 0, len(entries)*width)

	for i := range entries {
		placeholders := make([]string, width)
		for j := 0; j < width; j++ {
			placeholders[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs, entryArgs(&entries[i])...)
	}

	query := fmt.Sprintf(`
		INSERT INTO filter_audit (%s)
		VALUES %s`,
		insertColumns, strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(entries))
		s.logger.Error("Audit batch insert failed", zap.Error(err), zap.Int("entries", len(entries)))
		return result, fmt.Errorf("audit batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(entries))
	}

	result.Inserted = inserted
	result.Failed = int64(len(entries)) - inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Audit batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Stats returns verdict counts
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByReason: make(map[string]int64)}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN passed THEN 1 END) AS passed,
			COUNT(CASE WHEN blocked THEN 1 END) AS blocked
		FROM filter_audit`

	if err := s.db.QueryRowxContext(ctx, query).Scan(&stats.Total, &stats.Passed, &stats.Blocked); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}

	var reasons []struct {
		Reason string `db:"block_reason"`
		Count  int64  `db:"count"`
	}
	reasonQuery := `
		SELECT block_reason, COUNT(*) AS count
		FROM filter_audit
		WHERE block_reason <> ''
		GROUP BY block_reason`
	if err := s.db.SelectContext(ctx, &reasons, reasonQuery); err != nil {
		return nil, fmt.Errorf("failed to get block reasons: %w", err)
	}
	for _, r := range reasons {
		stats.ByReason[r.Reason] = r.Count
	}

	return stats, nil
}

// Recent returns the latest entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	query := `
		SELECT id, ` + insertColumns + `, created_at
		FROM filter_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func entryArgs(e *Entry) []interface{} {
	return []interface{}{
		e.RequestID,
		e.Source,
		e.TextHash,
		e.SourceKey,
		e.Locale,
		e.Passed,
		e.Blocked,
		e.BlockReason,
		e.PiiTypes,
		e.TokenCount,
		e.ErrorCodes,
	}
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
