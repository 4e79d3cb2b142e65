// Package queue implements bounded-concurrency admission control over the
// shared cache. Capacity is a fixed set of numbered slots, each leased by an
// atomic create-if-absent write of a unique holder token with a TTL, so a
// crashed holder can never starve capacity permanently.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/tutorgate/cache"
)

const slotPrefix = "q.slot."

// Lease is one held admission slot. Release it on every exit path of the
// guarded call.
type Lease struct {
	Key   string
	Token string
}

// Queue admits requests up to a fixed concurrency. Cache errors fail open:
// a cache outage degrades admission control, not the service.
type Queue struct {
	cache  cache.Cache
	logger *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// New creates an admission queue over the shared cache.
func New(c cache.Cache, opts ...Option) *Queue {
	q := &Queue{
		cache:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Acquire tries to lease one of maxConcurrency slots, scanning all slots
// once per poll tick until maxWait elapses. Returns the lease and whether a
// slot was acquired. maxConcurrency <= 0 disables admission control: the
// request is admitted with a nil lease. On cache error the request is also
// admitted, with the condition logged.
func (q *Queue) Acquire(ctx context.Context, maxConcurrency int, maxWait, pollInterval, ttl time.Duration) (*Lease, bool) {
	if maxConcurrency <= 0 {
		return nil, true
	}

	token := uuid.NewString()
	deadline := time.Now().Add(maxWait)

	for {
		for slot := 0; slot < maxConcurrency; slot++ {
			key := fmt.Sprintf("%s%d", slotPrefix, slot)

			ok, err := q.cache.Create(ctx, key, []byte(token), ttl)
			if err != nil {
				q.logger.Warn("Admission queue unavailable, admitting request", "slot", slot, "error", err)
				return nil, true
			}
			if ok {
				return &Lease{Key: key, Token: token}, true
			}
		}

		if time.Now().After(deadline) {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(pollInterval):
		}
	}
}

// Release frees a held slot, but only while it still holds this lease's
// token. A slot reclaimed by another caller after TTL expiry is left alone.
// Safe to call with a nil lease.
func (q *Queue) Release(ctx context.Context, lease *Lease) {
	if lease == nil {
		return
	}

	ok, err := q.cache.DeleteIfValue(ctx, lease.Key, []byte(lease.Token))
	if err != nil {
		q.logger.Warn("Admission slot release failed", "slot", lease.Key, "error", err)
		return
	}
	if !ok {
		q.logger.Debug("Admission slot already reclaimed", "slot", lease.Key)
	}
}
