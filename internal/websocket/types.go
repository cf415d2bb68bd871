package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeFilterVerdict is sent for every content filter check
	EventTypeFilterVerdict EventType = "filter_verdict"
	// EventTypePIIBlocked is sent when a submission is blocked for PII
	EventTypePIIBlocked EventType = "pii_blocked"
	// EventTypeRestorationFailed is sent when placeholders did not survive translation
	EventTypeRestorationFailed EventType = "restoration_failed"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// FilterVerdictEvent summarises one content filter check
type FilterVerdictEvent struct {
	Source       string   `json:"source"`
	Key          string   `json:"key,omitempty"`
	Locale       string   `json:"locale,omitempty"`
	Passed       bool     `json:"passed"`
	ErrorCodes   []string `json:"error_codes"`
	TokenCount   int      `json:"token_count"`
	PiiTypes     []string `json:"pii_types,omitempty"`
	ProcessingMS float64  `json:"processing_ms"`
}

// PIIBlockedEvent reports a blocked submission without its content
type PIIBlockedEvent struct {
	Key         string            `json:"key,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	BlockReason string            `json:"block_reason"`
	Findings    []privacy.Finding `json:"findings"`
	ClientIP    string            `json:"client_ip,omitempty"`
}

// RestorationFailedEvent lists placeholders lost in translation
type RestorationFailedEvent struct {
	SessionID      string                   `json:"session_id,omitempty"`
	Locale         string                   `json:"locale,omitempty"`
	FailedTokens   []string                 `json:"failed_tokens"`
	Issues         []tokenizer.RestoreIssue `json:"issues,omitempty"`
	RestoredTokens int                      `json:"restored_tokens"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string               `json:"type"`
	Data *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives
type EventFilter struct {
	Locales       []string `json:"locales,omitempty"`
	ExcludePassed bool     `json:"exclude_passed,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.RWMutex
	subscription *SubscriptionRequest
	lastPing     time.Time
}

// SetSubscription replaces the client's event subscription
func (c *Client) SetSubscription(sub *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = sub
}

// Subscription returns the client's event subscription, nil for all events
func (c *Client) Subscription() *SubscriptionRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscription
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}
