package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/tutorgate/cache"
)

const (
	convPrefix  = "conv."
	actorPrefix = "idx.actor."
	classPrefix = "idx.class."
)

// Store persists conversation state in the shared cache, maintaining actor
// and class indices so bulk reset never needs a key scan.
type Store struct {
	cache  cache.Cache
	logger *slog.Logger

	maxMessages     int
	summaryMaxChars int
	maxIndexEntries int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a conversation store enforcing the given bounds on every
// write: at most maxMessages verbatim turns, summaryMaxChars of summary, and
// maxIndexEntries keys per actor/class index.
func NewStore(c cache.Cache, maxMessages, summaryMaxChars, maxIndexEntries int, opts ...StoreOption) *Store {
	s := &Store{
		cache:           c,
		logger:          slog.Default(),
		maxMessages:     maxMessages,
		summaryMaxChars: summaryMaxChars,
		maxIndexEntries: maxIndexEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the state for key. A missing, corrupt, or unreadable entry
// loads as empty state; conversation memory is an enhancement, never a
// reason to fail a chat request.
func (s *Store) Load(ctx context.Context, key string) State {
	data, ok, err := s.cache.Get(ctx, convPrefix+key)
	if err != nil {
		s.logger.Warn("Conversation load failed, starting empty", "key", key, "error", err)
		return State{}
	}
	if !ok {
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Conversation entry corrupt, starting empty", "key", key, "error", err)
		return State{}
	}

	if len(state.Turns) > s.maxMessages && s.maxMessages > 0 {
		state.Turns = state.Turns[len(state.Turns)-s.maxMessages:]
	}
	return state
}

// Save normalizes and bounds the state, writes it under key with the given
// TTL, and registers the key in the actor index (and class index when
// classID is non-zero). Index maintenance is best-effort.
func (s *Store) Save(ctx context.Context, key string, turns []Turn, summary string, ttl time.Duration, actorID string, classID int) (bool, error) {
	normalized := make([]Turn, 0, len(turns))
	for _, t := range turns {
		t.Content = strings.TrimSpace(t.Content)
		if t.Content == "" {
			continue
		}
		if t.Role != RoleStudent && t.Role != RoleAssistant {
			t.Role = RoleStudent
		}
		normalized = append(normalized, t)
	}

	newSummary, kept, compacted := Compact(normalized, s.maxMessages, summary, s.summaryMaxChars)
	newSummary = trimSummary(newSummary, s.summaryMaxChars)

	data, err := json.Marshal(State{Summary: newSummary, Turns: kept})
	if err != nil {
		return compacted, fmt.Errorf("marshal conversation state: %w", err)
	}
	if err := s.cache.Set(ctx, convPrefix+key, data, ttl); err != nil {
		return compacted, fmt.Errorf("save conversation state: %w", err)
	}

	if actorID != "" {
		s.registerKey(ctx, actorPrefix+actorID, key, ttl)
	}
	if classID != 0 {
		s.registerKey(ctx, fmt.Sprintf("%s%d", classPrefix, classID), key, ttl)
	}

	return compacted, nil
}

// Delete removes one conversation.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, convPrefix+key)
}

// ClearClass deletes every conversation registered under classID, up to
// maxKeys, returning the number actually deleted. Individual delete
// failures are logged and skipped so one bad key cannot block the rest.
func (s *Store) ClearClass(ctx context.Context, classID, maxKeys int) int {
	keys := s.classKeys(ctx, classID, maxKeys)

	deleted := 0
	for _, key := range keys {
		if err := s.cache.Delete(ctx, convPrefix+key); err != nil {
			s.logger.Warn("Failed deleting conversation during class reset",
				"class_id", classID, "key", key, "error", err)
			continue
		}
		deleted++
	}

	if err := s.cache.Delete(ctx, fmt.Sprintf("%s%d", classPrefix, classID)); err != nil {
		s.logger.Warn("Failed deleting class index", "class_id", classID, "error", err)
	}

	return deleted
}

// SnapshotClass exports the conversations registered under classID, up to
// maxKeys conversations of maxMessagesPer turns each, for archival before a
// reset. Read-only.
func (s *Store) SnapshotClass(ctx context.Context, classID, maxKeys, maxMessagesPer int) map[string]State {
	out := make(map[string]State)
	for _, key := range s.classKeys(ctx, classID, maxKeys) {
		state := s.Load(ctx, key)
		if len(state.Turns) == 0 && state.Summary == "" {
			continue
		}
		if maxMessagesPer > 0 && len(state.Turns) > maxMessagesPer {
			state.Turns = state.Turns[len(state.Turns)-maxMessagesPer:]
		}
		out[key] = state
	}
	return out
}

// classKeys resolves the conversation keys registered for a class.
func (s *Store) classKeys(ctx context.Context, classID, maxKeys int) []string {
	keys := s.readIndex(ctx, fmt.Sprintf("%s%d", classPrefix, classID))
	if maxKeys > 0 && len(keys) > maxKeys {
		keys = keys[len(keys)-maxKeys:]
	}
	return keys
}

// registerKey appends key to the index at indexKey, deduplicating and
// evicting the oldest entries past the bound. Errors are logged only: index
// upkeep must never fail a save.
func (s *Store) registerKey(ctx context.Context, indexKey, key string, ttl time.Duration) {
	keys := s.readIndex(ctx, indexKey)

	for i, existing := range keys {
		if existing == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	keys = append(keys, key)

	if s.maxIndexEntries > 0 && len(keys) > s.maxIndexEntries {
		keys = keys[len(keys)-s.maxIndexEntries:]
	}

	data, err := json.Marshal(keys)
	if err != nil {
		s.logger.Warn("Failed marshaling index", "index", indexKey, "error", err)
		return
	}
	if err := s.cache.Set(ctx, indexKey, data, ttl); err != nil {
		s.logger.Warn("Failed writing index", "index", indexKey, "error", err)
	}
}

func (s *Store) readIndex(ctx context.Context, indexKey string) []string {
	data, ok, err := s.cache.Get(ctx, indexKey)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("Failed reading index", "index", indexKey, "error", err)
		}
		return nil
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		s.logger.Warn("Index entry corrupt, treating as empty", "index", indexKey, "error", err)
		return nil
	}
	return keys
}
