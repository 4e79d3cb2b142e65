// Package breaker implements a cache-resident circuit breaker per backend.
// All state lives in the shared cache so every service replica sees the same
// breaker, and TTL expiry is the only recovery path: there is no half-open
// probe state.
package breaker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/c360studio/tutorgate/cache"
)

const (
	failPrefix = "cb.fail."
	openPrefix = "cb.open."
)

// Breaker gates calls to named backends. Cache errors fail open: an
// unreachable cache degrades breaker protection, never chat traffic.
type Breaker struct {
	cache     cache.Cache
	logger    *slog.Logger
	threshold int
	ttl       time.Duration
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// New creates a breaker that opens after threshold failures within one TTL
// window. A threshold of 0 or below disables the breaker entirely.
func New(c cache.Cache, threshold int, ttl time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		cache:     c,
		logger:    slog.Default(),
		threshold: threshold,
		ttl:       ttl,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether calls to backend may proceed. Only a readable, set
// open flag blocks traffic.
func (b *Breaker) Allow(ctx context.Context, backend string) bool {
	if b.threshold <= 0 {
		return true
	}

	_, open, err := b.cache.Get(ctx, openPrefix+backend)
	if err != nil {
		b.logger.Warn("Circuit breaker read failed, allowing call", "backend", backend, "error", err)
		return true
	}
	return !open
}

// RecordFailure increments the failure counter for backend, flipping the
// breaker open once the count reaches the threshold. The counter window is
// anchored at the first failure and both entries share the breaker TTL.
func (b *Breaker) RecordFailure(ctx context.Context, backend string) {
	if b.threshold <= 0 {
		return
	}

	count, err := b.cache.Increment(ctx, failPrefix+backend, 1, b.ttl)
	if err != nil {
		b.logger.Warn("Circuit breaker increment failed", "backend", backend, "error", err)
		return
	}

	if count < int64(b.threshold) {
		return
	}

	if err := b.cache.Set(ctx, openPrefix+backend, []byte("1"), b.ttl); err != nil {
		b.logger.Warn("Circuit breaker open flag write failed", "backend", backend, "error", err)
		return
	}

	b.logger.Warn("Circuit breaker opened",
		"backend", backend,
		"failures", count,
		"threshold", b.threshold,
		"cooldown", b.ttl)
}

// RecordSuccess clears the failure counter and open flag for backend.
func (b *Breaker) RecordSuccess(ctx context.Context, backend string) {
	if b.threshold <= 0 {
		return
	}

	for _, key := range []string{failPrefix + backend, openPrefix + backend} {
		if err := b.cache.Delete(ctx, key); err != nil {
			b.logger.Warn("Circuit breaker reset failed", "key", key, "error", err)
		}
	}
}

// State describes one backend's breaker for health reporting.
type State struct {
	Backend  string `json:"backend"`
	Open     bool   `json:"open"`
	Failures int64  `json:"failures"`
}

// Inspect returns the current breaker state for backend. Read-only and
// best-effort; cache errors report a closed breaker with zero failures.
func (b *Breaker) Inspect(ctx context.Context, backend string) State {
	state := State{Backend: backend}

	if _, open, err := b.cache.Get(ctx, openPrefix+backend); err == nil {
		state.Open = open
	}
	if data, ok, err := b.cache.Get(ctx, failPrefix+backend); err == nil && ok {
		if n, perr := strconv.ParseInt(string(data), 10, 64); perr == nil {
			state.Failures = n
		}
	}
	return state
}
