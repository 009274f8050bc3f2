// Package ratelimit implements the fixed-window, per-client request quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pageproxy/internal/proxy"
	"github.com/JakeFAU/pageproxy/internal/telemetry"
)

// Defaults mirror the public quota: 20 requests per client per minute.
const (
	DefaultMaxRequests   = 20
	DefaultWindow        = time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultStaleWindows  = 5
)

// UnknownClient is the identity used when no forwarded address is present.
const UnknownClient = "unknown"

// Config holds rate limiter configuration.
type Config struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
	// StaleWindows is how many windows an idle client is kept before sweeping.
	StaleWindows int
}

type quota struct {
	count       int
	windowStart time.Time
}

// Limiter tracks a request count per client over a fixed window.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*quota
	cfg     Config
	clock   proxy.Clock
	logger  *zap.Logger
}

// New creates a Limiter. Zero config values fall back to the defaults.
func New(cfg Config, clock proxy.Clock, logger *zap.Logger) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.StaleWindows <= 0 {
		cfg.StaleWindows = DefaultStaleWindows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		clients: make(map[string]*quota),
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// Admit consumes one unit of the client's quota if any is left.
// Rejections do not consume quota.
func (l *Limiter) Admit(clientID string) proxy.Decision {
	if clientID == "" {
		clientID = UnknownClient
	}
	now := l.clock.Now()

	l.mu.Lock()
	q, ok := l.clients[clientID]
	if !ok {
		q = &quota{windowStart: now}
		l.clients[clientID] = q
	}
	if now.Sub(q.windowStart) > l.cfg.Window {
		q.count = 0
		q.windowStart = now
	}
	resetAt := q.windowStart.Add(l.cfg.Window)
	if q.count >= l.cfg.MaxRequests {
		tracked := len(l.clients)
		l.mu.Unlock()
		telemetry.SetTrackedClients(tracked)
		telemetry.ObserveAdmission(false)
		return proxy.Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	q.count++
	remaining := l.cfg.MaxRequests - q.count
	tracked := len(l.clients)
	l.mu.Unlock()

	telemetry.SetTrackedClients(tracked)
	telemetry.ObserveAdmission(true)
	return proxy.Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

// Sweep drops clients whose window started more than StaleWindows windows ago.
// It returns the number of entries removed.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-time.Duration(l.cfg.StaleWindows) * l.cfg.Window)

	l.mu.Lock()
	removed := 0
	for id, q := range l.clients {
		if q.windowStart.Before(cutoff) {
			delete(l.clients, id)
			removed++
		}
	}
	tracked := len(l.clients)
	l.mu.Unlock()

	telemetry.SetTrackedClients(tracked)
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run sweeps stale clients on every SweepInterval tick until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(l.clock.Now()); removed > 0 {
				l.logger.Debug("swept stale rate limit entries",
					zap.Int("removed", removed),
					zap.Int("tracked", l.Len()),
				)
			}
		}
	}
}
