package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/raaihank/l10n-sentinel/internal/audit"
	"github.com/raaihank/l10n-sentinel/internal/cache"
	"github.com/raaihank/l10n-sentinel/internal/filter"
	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"github.com/raaihank/l10n-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Error codes returned in error bodies
const (
	errInvalidRequest  = "invalid_request"
	errBlockedPii      = "blocked_pii"
	errSessionNotFound = "session_not_found"
	errSessionsOff     = "sessions_disabled"
	errRateLimited     = "rate_limited"
	errInternal        = "internal_error"
)

type scanRequest struct {
	Text *string `json:"text" validate:"required"`
}

type scanResponse struct {
	privacy.ScanResult
	MaskedText string `json:"masked_text,omitempty"`
}

type tokenizeRequest struct {
	Text    *string         `json:"text" validate:"required"`
	Options json.RawMessage `json:"options,omitempty"`
}

type tokenizeResponse struct {
	tokenizer.TokenizationResult
	SessionID string `json:"session_id,omitempty"`
}

type restoreRequest struct {
	Translated   *string                       `json:"translated" validate:"required"`
	SessionID    string                        `json:"session_id" validate:"omitempty,uuid"`
	Tokenization *tokenizer.TokenizationResult `json:"tokenization" validate:"required_without=SessionID"`
	Locale       string                        `json:"locale" validate:"omitempty,bcp47_language_tag"`
	LinkLabels   map[string]string             `json:"link_labels,omitempty"`
	Consume      bool                          `json:"consume"`
}

type filterRequest struct {
	Text   *string `json:"text" validate:"required"`
	Key    string  `json:"key" validate:"max=256"`
	Locale string  `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

type filterResponse struct {
	filter.ContentFilterResult
	SessionID  string `json:"session_id,omitempty"`
	MaskedText string `json:"masked_text,omitempty"`
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports the active configuration and backing store statistics
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	eng := s.engine.Load()
	opts := eng.filter.Tokenizer().Options()

	info := map[string]interface{}{
		"name":            "l10n-sentinel",
		"version":         version,
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"privacy_enabled": eng.config.Privacy.Enabled,
		"detectors":       eng.detector.GetEnabledRules(),
		"max_length":      eng.filter.MaxLength(),
		"glossary_terms":  len(opts.GlossaryTerms),
		"html_tags":       opts.TokenizeHTMLTags,
	}

	if s.sessions != nil {
		if stats, err := s.sessions.Stats(r.Context()); err != nil {
			s.requestLogger(r).Warn("Failed to get session cache stats", zap.Error(err))
		} else {
			info["session_cache"] = stats
		}
	}
	if s.audit != nil {
		if stats, err := s.audit.Stats(r.Context()); err != nil {
			s.requestLogger(r).Warn("Failed to get audit stats", zap.Error(err))
		} else {
			info["audit"] = stats
		}
	}
	if s.hub != nil {
		info["websocket"] = s.hub.GetStats()
	}

	writeJSON(w, http.StatusOK, info)
}

// handleScan reports PII findings, with a masked copy when masking is on
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}

	eng := s.engine.Load()
	resp := scanResponse{ScanResult: eng.detector.Scan(*req.Text)}
	if resp.HasPii && eng.config.Privacy.Masking.Enabled {
		resp.MaskedText = eng.detector.Mask(*req.Text)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleTokenize tokenizes text that passes the PII scan. Blocked text is
// refused so it never enters a token map or the session cache.
func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	eng := s.engine.Load()
	if scan := eng.detector.Scan(*req.Text); scan.Blocked {
		s.writeError(w, r, http.StatusUnprocessableEntity, errBlockedPii,
			fmt.Sprintf("text contains personal data (%s)", scan.BlockReason))
		return
	}

	tok := eng.filter.Tokenizer()
	if len(req.Options) > 0 && string(req.Options) != "null" {
		// Fields the client leaves out keep their configured values. A sent
		// glossary replaces the configured one instead of merging into it.
		opts := tok.Options()
		configured := opts.GlossaryTerms
		opts.GlossaryTerms = nil
		dec := json.NewDecoder(bytes.NewReader(req.Options))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			s.writeError(w, r, http.StatusBadRequest, errInvalidRequest, fmt.Sprintf("invalid options: %v", err))
			return
		}
		if opts.GlossaryTerms == nil {
			opts.GlossaryTerms = configured
		}
		custom, err := tokenizer.New(opts)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, errInvalidRequest, err.Error())
			return
		}
		tok = custom
	}

	resp := tokenizeResponse{TokenizationResult: tok.Tokenize(*req.Text)}
	id, ok := s.saveSession(w, r, resp.TokenizationResult)
	if !ok {
		return
	}
	resp.SessionID = id

	writeJSON(w, http.StatusOK, resp)
}

// handleRestore substitutes placeholders back into translated text. Failed
// placeholders are part of a 200 response.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decode(w, r, &req) {
		return
	}

	log := s.requestLogger(r)
	if req.SessionID != "" {
		log = log.WithSession(req.SessionID)
	}

	var tok tokenizer.TokenizationResult
	if req.SessionID != "" {
		if s.sessions == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, errSessionsOff, "session cache is disabled")
			return
		}
		loaded, err := s.sessions.Load(r.Context(), req.SessionID)
		if errors.Is(err, cache.ErrSessionNotFound) {
			s.writeError(w, r, http.StatusNotFound, errSessionNotFound, "session not found or expired")
			return
		}
		if err != nil {
			log.Error("Failed to load session", zap.Error(err))
			s.writeError(w, r, http.StatusInternalServerError, errInternal, "failed to load session")
			return
		}
		tok = loaded
	} else {
		tok = *req.Tokenization
	}

	result := tokenizer.RestoreWithOptions(*req.Translated, tok, tokenizer.RestoreOptions{
		Locale:     req.Locale,
		LinkLabels: req.LinkLabels,
	})

	if !result.Success {
		log.Warn("Restoration incomplete",
			zap.String("locale", req.Locale),
			zap.Strings("failed_tokens", result.FailedTokens),
		)
		s.broadcast(websocket.Event{
			Type:      websocket.EventTypeRestorationFailed,
			RequestID: getRequestID(r.Context()),
			Data: websocket.RestorationFailedEvent{
				SessionID:      req.SessionID,
				Locale:         req.Locale,
				FailedTokens:   result.FailedTokens,
				Issues:         result.Issues,
				RestoredTokens: len(result.RestoredTokens),
			},
		})
	}

	if req.Consume && result.Success && req.SessionID != "" {
		if err := s.sessions.Delete(r.Context(), req.SessionID); err != nil && !errors.Is(err, cache.ErrSessionNotFound) {
			log.Warn("Failed to delete consumed session", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// handleFilter runs the full content filter. The verdict is always a 200;
// blocked and invalid submissions are reported in the body.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !s.decode(w, r, &req) {
		return
	}

	start := time.Now()
	eng := s.engine.Load()
	text := *req.Text
	result := eng.filter.Check(text)
	elapsed := time.Since(start)

	resp := filterResponse{ContentFilterResult: result}
	if result.PiiScan.Blocked && eng.config.Privacy.Masking.Enabled {
		resp.MaskedText = eng.detector.Mask(text)
	}
	if result.Passed {
		id, ok := s.saveSession(w, r, *result.Tokenization)
		if !ok {
			return
		}
		resp.SessionID = id
	}

	requestID := getRequestID(r.Context())
	s.recordAudit(r, audit.NewEntry(audit.SourceAPI, requestID, req.Key, req.Locale, text, result))
	s.broadcastVerdict(requestID, req, result, elapsed, websocket.ClientIP(r))

	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteSession drops a stored tokenization
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errSessionsOff, "session cache is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.validate.Var(id, "uuid"); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errInvalidRequest, "session id must be a UUID")
		return
	}

	err := s.sessions.Delete(r.Context(), id)
	switch {
	case errors.Is(err, cache.ErrSessionNotFound):
		s.writeError(w, r, http.StatusNotFound, errSessionNotFound, "session not found or expired")
	case err != nil:
		s.requestLogger(r).Error("Failed to delete session", zap.String("session_id", id), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, errInternal, "failed to delete session")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// saveSession stores tok when a session store is configured. It writes the
// error response itself and reports false on failure.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, tok tokenizer.TokenizationResult) (string, bool) {
	if s.sessions == nil {
		return "", true
	}
	id, err := s.sessions.Save(r.Context(), tok)
	if err != nil {
		s.requestLogger(r).Error("Failed to save session", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, errInternal, "failed to save session")
		return "", false
	}
	return id, true
}

// recordAudit stores the verdict. Audit failures are logged, not returned.
func (s *Server) recordAudit(r *http.Request, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(r.Context(), &entry); err != nil {
		s.requestLogger(r).Error("Failed to record audit entry", zap.Error(err))
	}
}

func (s *Server) broadcastVerdict(requestID string, req filterRequest, result filter.ContentFilterResult, elapsed time.Duration, ip string) {
	piiTypes := make([]string, len(result.PiiScan.PiiTypes))
	for i, t := range result.PiiScan.PiiTypes {
		piiTypes[i] = string(t)
	}
	tokenCount := 0
	if result.Tokenization != nil {
		tokenCount = result.Tokenization.TokenMap.Len()
	}

	s.broadcast(websocket.Event{
		Type:      websocket.EventTypeFilterVerdict,
		RequestID: requestID,
		Data: websocket.FilterVerdictEvent{
			Source:       audit.SourceAPI,
			Key:          req.Key,
			Locale:       req.Locale,
			Passed:       result.Passed,
			ErrorCodes:   result.Codes(),
			TokenCount:   tokenCount,
			PiiTypes:     piiTypes,
			ProcessingMS: float64(elapsed.Nanoseconds()) / 1e6,
		},
	})

	if result.PiiScan.Blocked {
		s.broadcast(websocket.Event{
			Type:      websocket.EventTypePIIBlocked,
			RequestID: requestID,
			Data: websocket.PIIBlockedEvent{
				Key:         req.Key,
				Locale:      req.Locale,
				BlockReason: string(result.PiiScan.BlockReason),
				Findings:    result.PiiScan.Findings,
				ClientIP:    ip,
			},
		})
	}
}

// decode reads a size-limited JSON body into v and validates it
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	limit := s.engine.Load().config.Server.MaxRequestBody
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, errInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return false
		}
		s.writeError(w, r, http.StatusBadRequest, errInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one line
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = getRequestID(r.Context())
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
