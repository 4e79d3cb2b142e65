// Package cache defines the shared key-value store used for conversation
// state, circuit-breaker counters, admission-queue slots, and actor indices.
// All cross-process coordination goes through this interface so the gateway
// behaves correctly when multiple replicas share one backing store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by implementations when a key does not exist.
// Callers that treat missing keys as empty state should check for it
// explicitly rather than relying on zero values.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the minimal atomic surface the gateway needs from a shared store.
//
// Implementations must make Create and DeleteIfValue atomic with respect to
// concurrent callers; Increment must not lose updates under contention.
type Cache interface {
	// Get returns the value at key. The second return is false when the key
	// is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value at key with the given TTL. A zero TTL means the entry
	// only expires through the store's own limits.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteIfValue removes key only if it currently holds exactly value.
	// Returns true if the entry was deleted.
	DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error)

	// Create stores value only if key is absent. Returns false if the key
	// already exists.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Increment adds delta to the integer stored at key, creating the entry
	// at delta if absent, and returns the new value. The TTL applies to the
	// entry as a whole, so a counter window starts at first increment.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}
