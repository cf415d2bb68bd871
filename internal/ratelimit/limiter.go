// Package ratelimit throttles API clients with one token bucket per client.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/l10n-sentinel/internal/config"
	"golang.org/x/time/rate"
)

// Limiter keeps a token bucket per client key
type Limiter struct {
	config  config.RateLimitConfig
	clients map[string]*client
	trusted []netip.Prefix
	mu      sync.Mutex
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter. The bucket refills at RequestsPerMin and holds
// Burst requests.
func New(cfg config.RateLimitConfig) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	// Entries are checked by config validation
	trusted, _ := cfg.TrustedPrefixes()
	return &Limiter{
		config:  cfg,
		clients: make(map[string]*client),
		trusted: trusted,
		now:     time.Now,
	}
}

// ClientKey returns the bucket key for r. Forwarding headers are only
// believed when the direct peer is a trusted proxy, so clients cannot pick
// their own key.
func (l *Limiter) ClientKey(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !l.isTrusted(peer) {
		return peer
	}

	// Walk X-Forwarded-For from the nearest hop back to the first address
	// not added by one of our proxies
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !l.isTrusted(hop) {
				return hop
			}
			peer = hop
		}
		return peer
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func (l *Limiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Allow reports whether a request from key may proceed
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	c, ok := l.clients[key]
	now := l.now()
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(float64(l.config.RequestsPerMin)/60.0), l.config.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Cleanup forgets clients idle for longer than the configured timeout
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.IdleTimeout)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run cleans up idle clients until ctx is done
func (l *Limiter) Run(ctx context.Context) {
	interval := l.config.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
