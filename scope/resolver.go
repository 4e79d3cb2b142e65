package scope

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMissingToken is returned when an actor that requires scope sends none.
var ErrMissingToken = errors.New("scope token required")

// ActorType classifies the identity making a chat request.
type ActorType string

const (
	ActorStudent ActorType = "student"
	ActorStaff   ActorType = "staff"
	ActorService ActorType = "service"
)

// Envelope is the verified (or explicitly unverified) scope for one request.
// It is constructed per request and never persisted.
type Envelope struct {
	Context       string
	Topics        []string
	AllowedTopics []string
	ReferenceKey  string
	ClassID       int

	// Verified is true only when the envelope came from a valid signed token.
	Verified bool

	// Fingerprint isolates conversation history by signed scope. Empty for
	// unscoped requests.
	Fingerprint string
}

// Request carries the scope-relevant fields of an inbound chat request.
// The unsigned fields exist because older clients send them; they are never
// applied, only logged (see Resolve).
type Request struct {
	Token string

	// Unsigned scope-shaped fields from the request body.
	Context       string
	Topics        []string
	AllowedTopics []string
	Reference     string
}

// Resolver turns request scope material into an Envelope.
type Resolver struct {
	codec             *Codec
	maxAge            time.Duration
	requireStaffScope bool
	logger            *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRequireStaffScope makes staff actors fail without a token, matching
// the policy applied to students.
func WithRequireStaffScope(require bool) ResolverOption {
	return func(r *Resolver) {
		r.requireStaffScope = require
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver verifying tokens with codec, rejecting
// signatures older than maxAge.
func NewResolver(codec *Codec, maxAge time.Duration, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		codec:  codec,
		maxAge: maxAge,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the envelope for one request.
//
// When a token is present it is the only source of scope: unsigned
// context/topics fields the caller also sent are ignored, which is what
// prevents scope spoofing. Without a token, students (and staff under the
// require-staff-scope policy) are rejected; other actors proceed unscoped.
func (r *Resolver) Resolve(req Request, actor ActorType) (Envelope, error) {
	if req.Token != "" {
		payload, err := r.codec.Verify(req.Token, r.maxAge)
		if err != nil {
			return Envelope{}, fmt.Errorf("verify scope token: %w", err)
		}
		return Envelope{
			Context:       payload.Context,
			Topics:        payload.Topics,
			AllowedTopics: payload.AllowedTopics,
			ReferenceKey:  payload.ReferenceKey,
			ClassID:       payload.ClassID,
			Verified:      true,
			Fingerprint:   Fingerprint(req.Token),
		}, nil
	}

	if actor == ActorStudent {
		return Envelope{}, ErrMissingToken
	}
	if actor == ActorStaff && r.requireStaffScope {
		return Envelope{}, ErrMissingToken
	}

	if req.Context != "" || len(req.Topics) > 0 || len(req.AllowedTopics) > 0 || req.Reference != "" {
		// Unsigned scope fields are never applied; record that a caller sent
		// them so misconfigured clients are visible.
		r.logger.Info("Ignoring unsigned scope fields on unscoped request",
			"actor_type", string(actor),
			"has_context", req.Context != "",
			"topic_count", len(req.Topics))
	}

	return Envelope{Verified: false}, nil
}
