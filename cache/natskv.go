package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// incrementRetries bounds the optimistic-concurrency loop in Increment.
const incrementRetries = 8

// NATSKV is a Cache backed by a NATS JetStream key-value bucket, giving all
// gateway replicas one consistent view of conversation state, breaker
// counters, and queue slots.
//
// JetStream KV expires entries per bucket, not per key, so each value is
// wrapped in an envelope carrying its own expiry; expired entries read as
// absent and are deleted opportunistically. The bucket TTL acts as the hard
// upper bound for anything the lazy path never touches again.
type NATSKV struct {
	kv nats.KeyValue
}

// kvEnvelope wraps a stored value with its per-entry expiry.
type kvEnvelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix millis, 0 = no expiry
}

// NewNATSKV opens (or creates) the named bucket on an established connection.
// maxTTL should be at least as long as the longest per-entry TTL the gateway
// uses; it is the bucket-level expiry backstop.
func NewNATSKV(nc *nats.Conn, bucket string, maxTTL time.Duration) (*NATSKV, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    maxTTL,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}

	return &NATSKV{kv: kv}, nil
}

// Get returns the value at key, treating expired envelopes as absent.
func (c *NATSKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, env, err := c.getLive(ctx, key)
	if err != nil || entry == nil {
		return nil, false, err
	}
	return env.Value, true, nil
}

// Set stores value at key with the given per-entry TTL.
func (c *NATSKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(envelope(value, ttl))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if _, err := c.kv.Put(key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *NATSKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.kv.Purge(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteIfValue removes key only if it still holds exactly value, using the
// entry revision so a concurrent overwrite wins over the delete.
func (c *NATSKV) DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	entry, env, err := c.getLive(ctx, key)
	if err != nil || entry == nil {
		return false, err
	}
	if string(env.Value) != string(value) {
		return false, nil
	}

	err = c.kv.Delete(key, nats.LastRevision(entry.Revision()))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return false, nil
		}
		// A revision mismatch means someone replaced the entry between the
		// read and the delete; that is a clean "not ours anymore".
		return false, nil
	}
	return true, nil
}

// Create stores value only if key is absent or holds an expired envelope.
func (c *NATSKV) Create(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	data, err := json.Marshal(envelope(value, ttl))
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = c.kv.Create(key, data)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, nats.ErrKeyExists) {
		return false, fmt.Errorf("create %s: %w", key, err)
	}

	// The key exists; it may still be a dead envelope. Take it over with a
	// revision-checked update so only one contender wins.
	entry, err := c.kv.Get(key)
	if err != nil {
		return false, nil
	}
	var env kvEnvelope
	if unmarshalErr := json.Unmarshal(entry.Value(), &env); unmarshalErr == nil && !expired(env) {
		return false, nil
	}

	if _, err := c.kv.Update(key, data, entry.Revision()); err != nil {
		return false, nil
	}
	return true, nil
}

// Increment adds delta to the integer at key via a revision CAS loop.
func (c *NATSKV) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	for i := 0; i < incrementRetries; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		entry, env, err := c.getLive(ctx, key)
		if err != nil {
			return 0, err
		}

		if entry == nil {
			created, err := c.Create(ctx, key, []byte(strconv.FormatInt(delta, 10)), ttl)
			if err != nil {
				return 0, err
			}
			if created {
				return delta, nil
			}
			continue // lost the race, re-read
		}

		n, err := strconv.ParseInt(string(env.Value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("increment %s: existing value is not an integer: %w", key, err)
		}
		n += delta

		// Preserve the original expiry so the counter window stays anchored
		// at the first increment.
		next := kvEnvelope{Value: []byte(strconv.FormatInt(n, 10)), ExpiresAt: env.ExpiresAt}
		data, err := json.Marshal(next)
		if err != nil {
			return 0, fmt.Errorf("marshal envelope: %w", err)
		}

		if _, err := c.kv.Update(key, data, entry.Revision()); err == nil {
			return n, nil
		}
	}

	return 0, fmt.Errorf("increment %s: too much contention", key)
}

// getLive fetches and decodes an entry, returning (nil, _, nil) when the key
// is absent, corrupt, or expired. Expired entries are purged best-effort.
func (c *NATSKV) getLive(ctx context.Context, key string) (nats.KeyValueEntry, kvEnvelope, error) {
	var env kvEnvelope

	if err := ctx.Err(); err != nil {
		return nil, env, err
	}

	entry, err := c.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, env, nil
	}
	if err != nil {
		return nil, env, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		// Corrupt entries read as absent; the writer will replace them.
		return nil, kvEnvelope{}, nil
	}
	if expired(env) {
		_ = c.kv.Delete(key, nats.LastRevision(entry.Revision()))
		return nil, kvEnvelope{}, nil
	}

	return entry, env, nil
}

func envelope(value []byte, ttl time.Duration) kvEnvelope {
	env := kvEnvelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	}
	return env
}

func expired(env kvEnvelope) bool {
	return env.ExpiresAt != 0 && time.Now().UnixMilli() > env.ExpiresAt
}
