// Package api exposes the content filter, tokenizer and restorer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/raaihank/l10n-sentinel/internal/audit"
	"github.com/raaihank/l10n-sentinel/internal/cache"
	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/filter"
	"github.com/raaihank/l10n-sentinel/internal/logger"
	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/ratelimit"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"github.com/raaihank/l10n-sentinel/internal/web"
	"github.com/raaihank/l10n-sentinel/internal/websocket"
	"go.uber.org/zap"
)

const version = "0.1.0"

// SessionStore keeps tokenizations between the tokenize and restore calls
type SessionStore interface {
	Save(ctx context.Context, tok tokenizer.TokenizationResult) (string, error)
	Load(ctx context.Context, id string) (tokenizer.TokenizationResult, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*cache.CacheStats, error)
}

// AuditStore records filter verdicts
type AuditStore interface {
	Record(ctx context.Context, entry *audit.Entry) error
	Stats(ctx context.Context) (*audit.Stats, error)
}

// engine is everything rebuilt on a configuration reload
type engine struct {
	config   *config.Config
	detector *privacy.Detector
	filter   *filter.Filter
}

// Server is the HTTP front end of the engine
type Server struct {
	engine    atomic.Pointer[engine]
	logger    *logger.Logger
	baseLog   *logger.Logger
	sessions  SessionStore
	audit     AuditStore
	hub       *websocket.Hub
	limiter   *ratelimit.Limiter
	validate  *validator.Validate
	router    *mux.Router
	server    *http.Server
	startTime time.Time
}

// Option configures optional server dependencies
type Option func(*Server)

// WithSessionStore enables session IDs on tokenize, filter and restore
func WithSessionStore(store SessionStore) Option {
	return func(s *Server) { s.sessions = store }
}

// WithAuditStore records every filter verdict
func WithAuditStore(store AuditStore) Option {
	return func(s *Server) { s.audit = store }
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	eng, err := buildEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:    log.WithComponent("api"),
		baseLog:   log,
		validate:  validator.New(),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}
	s.engine.Store(eng)

	for _, opt := range opts {
		opt(s)
	}

	if cfg.WebSocket.Enabled {
		s.hub = websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger)
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(cfg.RateLimit)
	}

	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

// buildEngine creates the detector and filter for cfg
func buildEngine(cfg *config.Config, log *logger.Logger) (*engine, error) {
	f, detector, err := filter.NewFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	return &engine{config: cfg, detector: detector, filter: f}, nil
}

// Reload swaps in a new detector and filter built from cfg. Requests in
// flight keep the engine they started with. Server, cache, audit and
// websocket settings need a restart.
func (s *Server) Reload(cfg *config.Config) error {
	eng, err := buildEngine(cfg, s.baseLog)
	if err != nil {
		return fmt.Errorf("failed to reload engine: %w", err)
	}
	s.engine.Store(eng)

	s.logger.Info("Engine reloaded",
		zap.Int("glossary_terms", len(eng.filter.Tokenizer().Options().GlossaryTerms)),
		zap.Int("max_length", eng.filter.MaxLength()),
		zap.Strings("detectors", eng.detector.GetEnabledRules()),
	)
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg *config.Config) {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	// Live dashboard over the websocket event stream
	if s.hub != nil {
		s.router.HandleFunc(cfg.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.loggingMiddleware)
	v1.Use(s.rateLimitMiddleware)
	v1.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	v1.HandleFunc("/tokenize", s.handleTokenize).Methods(http.MethodPost)
	v1.HandleFunc("/restore", s.handleRestore).Methods(http.MethodPost)
	v1.HandleFunc("/filter", s.handleFilter).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background loops bound to ctx and serves HTTP until Stop
func (s *Server) Start(ctx context.Context) error {
	cfg := s.engine.Load().config
	s.logger.Info("Starting l10n-sentinel API server",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("session_cache", s.sessions != nil),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.hub != nil),
		zap.Bool("rate_limit", s.limiter != nil),
	)

	if s.hub != nil {
		go s.hub.Run(ctx)
	}
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping l10n-sentinel API server")
	return s.server.Shutdown(ctx)
}

// Hub returns the websocket hub, nil when disabled
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

func (s *Server) broadcast(event websocket.Event) {
	if s.hub != nil {
		s.hub.BroadcastEvent(event)
	}
}
