package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"go.uber.org/zap"
)

// SessionCache keeps tokenization results in Redis between the tokenize and
// restore calls of one translation round trip
type SessionCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSessionCache connects to Redis and verifies the connection
func NewSessionCache(cfg config.CacheConfig, logger *zap.Logger) (*SessionCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	cache := NewSessionCacheWithClient(redis.NewClient(opts), cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Session cache initialized successfully",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("session_ttl", cfg.SessionTTL))

	return cache, nil
}

// NewSessionCacheWithClient wraps an existing client
func NewSessionCacheWithClient(client *redis.Client, cfg config.CacheConfig, logger *zap.Logger) *SessionCache {
	return &SessionCache{
		client: client,
		config: cfg,
		logger: logger,
	}
}

// Save stores tok under a new session ID
func (c *SessionCache) Save(ctx context.Context, tok tokenizer.TokenizationResult) (string, error) {
	session := Session{
		ID:           uuid.NewString(),
		Tokenization: tok,
		CreatedAt:    time.Now().UTC(),
		TTL:          int64(c.config.SessionTTL.Seconds()),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, c.key(session.ID), data, c.config.SessionTTL).Err(); err != nil {
		c.logger.Error("Failed to store session", zap.Error(err))
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	c.logger.Debug("Session stored",
		zap.String("session_id", session.ID),
		zap.Int("tokens", tok.TokenMap.Len()))

	return session.ID, nil
}

// Load returns the tokenization stored under id
func (c *SessionCache) Load(ctx context.Context, id string) (tokenizer.TokenizationResult, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return tokenizer.TokenizationResult{}, ErrSessionNotFound
	}
	if err != nil {
		return tokenizer.TokenizationResult{}, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		c.logger.Error("Failed to unmarshal session, deleting it", zap.String("session_id", id), zap.Error(err))
		c.client.Del(ctx, c.key(id))
		c.misses.Add(1)
		return tokenizer.TokenizationResult{}, ErrSessionNotFound
	}

	c.hits.Add(1)
	return session.Tokenization, nil
}

// Delete removes a session
func (c *SessionCache) Delete(ctx context.Context, id string) error {
	n, err := c.client.Del(ctx, c.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Stats returns hit rates and the number of live sessions
func (c *SessionCache) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}
	stats.MemoryUsage = parseUsedMemory(info)

	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Sessions++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return stats, nil
}

// Close closes the Redis connection
func (c *SessionCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *SessionCache) key(id string) string {
	return c.config.KeyPrefix + id
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
