// Package memory keeps bounded per-conversation history in the shared
// cache: verbatim recent turns plus a rolling summary of everything older,
// indexed by actor and class for bulk reset.
package memory

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleStudent   = "student"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Intent  string `json:"intent,omitempty"`
}

// State is the mutable memory for one (actor, scope, conversation) triple:
// the newest turns verbatim and a summary of compacted history. Both live
// under a single TTL-bounded cache entry.
type State struct {
	Summary string `json:"summary,omitempty"`
	Turns   []Turn `json:"turns,omitempty"`
}

// Key derives the cache key for a conversation. The exclusive join of actor
// identity, scope fingerprint, and conversation id is what isolates
// histories from each other.
func Key(actorID, scopeFingerprint, conversationID string) string {
	sum := sha256.Sum256([]byte(actorID + "|" + scopeFingerprint + "|" + conversationID))
	return fmt.Sprintf("%x", sum[:16])
}

var (
	hexID  = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	uuidID = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// NormalizeConversationID canonicalizes a client-supplied conversation id to
// 32 lowercase hex characters. Already-canonical ids and UUIDs pass through
// (dashes stripped); anything else is re-hashed; empty generates a fresh id.
func NormalizeConversationID(raw string) string {
	switch {
	case raw == "":
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	case hexID.MatchString(raw):
		return strings.ToLower(raw)
	case uuidID.MatchString(raw):
		return strings.ToLower(strings.ReplaceAll(raw, "-", ""))
	default:
		sum := sha256.Sum256([]byte(raw))
		return fmt.Sprintf("%x", sum[:16])
	}
}
