// Package gateway composes scope verification, policy heuristics, reference
// citations, conversation memory, the circuit breaker, the admission queue,
// and the backend registry into the chat request lifecycle, and exposes the
// HTTP surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/tutorgate/backend"
	"github.com/c360studio/tutorgate/breaker"
	"github.com/c360studio/tutorgate/cache"
	"github.com/c360studio/tutorgate/memory"
	"github.com/c360studio/tutorgate/policy"
	"github.com/c360studio/tutorgate/queue"
	"github.com/c360studio/tutorgate/reference"
	"github.com/c360studio/tutorgate/scope"
)

// Settings are the orchestration knobs. The config package populates them
// from file and environment.
type Settings struct {
	// Backend is the registry name used for chat calls.
	Backend string

	// MaxAttempts and BaseBackoff drive backend retry.
	MaxAttempts int
	BaseBackoff time.Duration

	// MaxMessageChars caps inbound messages after redaction. 0 disables.
	MaxMessageChars int

	// TopicStrictness is "strict" or "relaxed". Strict mode redirects
	// messages with no allowed-topic overlap.
	TopicStrictness string

	MaxCitations int
	MaxFollowUps int

	// ConversationEnabled gates memory entirely; ConversationTTL bounds how
	// long idle conversations survive.
	ConversationEnabled bool
	ConversationTTL     time.Duration
	HistoryMaxChars     int

	// RateLimitPerMinute caps chat requests per actor. 0 disables.
	RateLimitPerMinute int

	// Admission queue knobs. MaxConcurrency <= 0 disables admission control.
	QueueMaxConcurrency int
	QueueMaxWait        time.Duration
	QueuePollInterval   time.Duration
	QueueSlotTTL        time.Duration

	// ArchiveDir receives pre-reset conversation exports.
	ArchiveDir string

	// ResetMaxKeys bounds how many conversations one class reset touches.
	ResetMaxKeys int
}

// ChatRequest is one inbound chat message with its actor identity.
type ChatRequest struct {
	Message           string   `json:"message"`
	ScopeToken        string   `json:"scope_token,omitempty"`
	ConversationID    string   `json:"conversation_id,omitempty"`
	ResetConversation bool     `json:"reset_conversation,omitempty"`
	Context           string   `json:"context,omitempty"`
	Topics            []string `json:"topics,omitempty"`
	AllowedTopics     []string `json:"allowed_topics,omitempty"`
	Reference         string   `json:"reference,omitempty"`

	// Actor identity comes from the HTTP boundary, not the body.
	ActorID   string          `json:"-"`
	ActorType scope.ActorType `json:"-"`
}

// ChatResponse is the assembled reply.
type ChatResponse struct {
	Text                  string               `json:"text"`
	Model                 string               `json:"model"`
	Backend               string               `json:"backend"`
	Strictness            string               `json:"strictness"`
	Attempts              int                  `json:"attempts"`
	QueueWaitMS           int64                `json:"queue_wait_ms"`
	TotalMS               int64                `json:"total_ms"`
	Truncated             bool                 `json:"truncated"`
	ScopeVerified         bool                 `json:"scope_verified"`
	Citations             []reference.Citation `json:"citations"`
	Intent                string               `json:"intent"`
	FollowUpSuggestions   []string             `json:"follow_up_suggestions"`
	ConversationID        string               `json:"conversation_id"`
	ConversationEnabled   bool                 `json:"conversation_enabled"`
	ConversationCompacted bool                 `json:"conversation_compacted"`
	RequestID             string               `json:"request_id"`
}

// ResetClassRequest clears every conversation for a class.
type ResetClassRequest struct {
	ClassID           int  `json:"class_id"`
	ExportBeforeReset bool `json:"export_before_reset"`
}

// ResetClassResponse reports the reset outcome.
type ResetClassResponse struct {
	OK                    bool   `json:"ok"`
	ClassID               int    `json:"class_id"`
	DeletedConversations  int    `json:"deleted_conversations"`
	ArchivedConversations int    `json:"archived_conversations"`
	ArchivePath           string `json:"archive_path,omitempty"`
}

// Service owns the chat request lifecycle.
type Service struct {
	settings Settings

	resolver    *scope.Resolver
	refResolver *reference.Resolver
	loader      *reference.Loader
	store       *memory.Store
	registry    *backend.Registry
	breaker     *breaker.Breaker
	queue       *queue.Queue
	cache       cache.Cache

	auditor *Auditor
	metrics *Metrics
	logger  *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditor attaches the audit event publisher.
func WithAuditor(a *Auditor) ServiceOption {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService wires the orchestrator.
func NewService(
	settings Settings,
	resolver *scope.Resolver,
	refResolver *reference.Resolver,
	loader *reference.Loader,
	store *memory.Store,
	registry *backend.Registry,
	brk *breaker.Breaker,
	q *queue.Queue,
	c cache.Cache,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		settings:    settings,
		resolver:    resolver,
		refResolver: refResolver,
		loader:      loader,
		store:       store,
		registry:    registry,
		breaker:     brk,
		queue:       q,
		cache:       c,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat runs one message through the full lifecycle. The returned error, when
// non-nil, is always a *Error carrying a stable code.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	started := time.Now()
	requestID := uuid.NewString()

	resp, err := s.chat(ctx, req, requestID, started)
	if err != nil {
		var gerr *Error
		if !errors.As(err, &gerr) {
			gerr = newError(CodeBackendError, "internal error")
		}
		gerr.RequestID = requestID
		s.metrics.observeOutcome(string(gerr.Code))
		s.auditor.Publish(AuditEvent{
			Kind:      "error",
			RequestID: requestID,
			ActorID:   req.ActorID,
			Code:      string(gerr.Code),
		})
		s.logger.Warn("Chat request failed",
			"request_id", requestID,
			"actor_id", req.ActorID,
			"code", string(gerr.Code))
		return nil, gerr
	}

	resp.RequestID = requestID
	resp.TotalMS = time.Since(started).Milliseconds()
	return resp, nil
}

func (s *Service) chat(ctx context.Context, req ChatRequest, requestID string, started time.Time) (*ChatResponse, error) {
	if req.ActorID == "" {
		return nil, newError(CodeUnauthorized, "no actor identity on request")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, newError(CodeBadRequestBody, "message is required")
	}

	if err := s.checkRateLimit(ctx, req.ActorID); err != nil {
		return nil, err
	}

	// Redact before the message is stored or forwarded anywhere.
	message := RedactPII(strings.TrimSpace(req.Message))
	message, truncated := CapMessage(message, s.settings.MaxMessageChars)

	env, err := s.resolver.Resolve(scope.Request{
		Token:         req.ScopeToken,
		Context:       req.Context,
		Topics:        req.Topics,
		AllowedTopics: req.AllowedTopics,
		Reference:     req.Reference,
	}, req.ActorType)
	if err != nil {
		if errors.Is(err, scope.ErrMissingToken) {
			return nil, newError(CodeMissingScopeToken, "a signed scope token is required")
		}
		return nil, newError(CodeInvalidScopeToken, "scope token rejected")
	}

	conversationID := memory.NormalizeConversationID(req.ConversationID)
	convKey := memory.Key(req.ActorID, env.Fingerprint, conversationID)

	if req.ResetConversation && s.settings.ConversationEnabled {
		if err := s.store.Delete(ctx, convKey); err != nil {
			s.logger.Warn("Conversation reset failed", "request_id", requestID, "error", err)
		}
	}

	var state memory.State
	if s.settings.ConversationEnabled {
		state = s.store.Load(ctx, convKey)
	}

	intent := policy.ClassifyIntent(message)
	citations := s.buildCitations(message, env)

	resp := &ChatResponse{
		Backend:             s.settings.Backend,
		Strictness:          s.settings.TopicStrictness,
		Truncated:           truncated,
		ScopeVerified:       env.Verified,
		Citations:           citations,
		Intent:              string(intent),
		ConversationID:      conversationID,
		ConversationEnabled: s.settings.ConversationEnabled,
	}

	// Redirect checks run in fixed order, each short-circuiting before any
	// breaker, queue, or backend interaction.
	if kind, redirect := s.redirectFor(message, env, citations); redirect != "" {
		resp.Text = redirect
		resp.FollowUpSuggestions = s.followUps(intent, env, state.Summary)
		resp.ConversationCompacted = s.persistTurns(ctx, convKey, state, message, redirect, intent, req.ActorID, env.ClassID)

		s.metrics.observeOutcome("redirect")
		s.metrics.observeRedirect(kind)
		s.auditor.Publish(AuditEvent{
			Kind:      "redirect",
			RequestID: requestID,
			ActorID:   req.ActorID,
			Intent:    string(intent),
			Code:      kind,
		})
		return resp, nil
	}

	b, err := s.registry.Get(s.settings.Backend)
	if err != nil {
		return nil, newError(CodeUnknownBackend, fmt.Sprintf("backend %q is not configured", s.settings.Backend))
	}

	if !s.breaker.Allow(ctx, s.settings.Backend) {
		return nil, newError(CodeBackendUnavailable, "backend is cooling down after repeated failures")
	}

	queueStart := time.Now()
	lease, admitted := s.queue.Acquire(ctx,
		s.settings.QueueMaxConcurrency,
		s.settings.QueueMaxWait,
		s.settings.QueuePollInterval,
		s.settings.QueueSlotTTL)
	if !admitted {
		return nil, newError(CodeBusy, "service is at capacity, try again shortly")
	}
	defer s.queue.Release(ctx, lease)
	queueWait := time.Since(queueStart)
	resp.QueueWaitMS = queueWait.Milliseconds()

	history := memory.FormatForPrompt(state.Turns, s.settings.HistoryMaxChars, state.Summary)
	instructions := buildInstructions(env, history, citations, intent)

	text, model, attempts, err := backend.CallWithRetries(ctx, b, instructions, message,
		s.settings.MaxAttempts, s.settings.BaseBackoff)
	resp.Attempts = attempts
	if err != nil {
		s.breaker.RecordFailure(ctx, s.settings.Backend)
		return nil, classifyBackendError(err)
	}
	s.breaker.RecordSuccess(ctx, s.settings.Backend)

	resp.Text = text
	resp.Model = model
	resp.FollowUpSuggestions = s.followUps(intent, env, state.Summary)
	resp.ConversationCompacted = s.persistTurns(ctx, convKey, state, message, text, intent, req.ActorID, env.ClassID)

	s.metrics.observeOutcome("ok")
	s.metrics.observeCall(attempts, queueWait.Seconds(), time.Since(started).Seconds())
	s.auditor.Publish(AuditEvent{
		Kind:      "chat_served",
		RequestID: requestID,
		ActorID:   req.ActorID,
		Backend:   s.settings.Backend,
		Intent:    string(intent),
	})
	return resp, nil
}

// checkRateLimit counts requests per actor in a one-minute window. Counter
// errors fail open.
func (s *Service) checkRateLimit(ctx context.Context, actorID string) error {
	if s.settings.RateLimitPerMinute <= 0 {
		return nil
	}

	count, err := s.cache.Increment(ctx, "rl."+actorID, 1, time.Minute)
	if err != nil {
		s.logger.Warn("Rate limit counter unavailable, allowing request", "error", err)
		return nil
	}
	if count > int64(s.settings.RateLimitPerMinute) {
		return newError(CodeRateLimited, "too many requests, slow down")
	}
	return nil
}

// buildCitations resolves and ranks reference material. Any failure yields
// an empty citation list rather than a failed request.
func (s *Service) buildCitations(message string, env scope.Envelope) []reference.Citation {
	if env.ReferenceKey == "" || s.settings.MaxCitations <= 0 {
		return []reference.Citation{}
	}

	path, err := s.refResolver.ResolvePath(env.ReferenceKey)
	if err != nil {
		s.logger.Debug("Reference key did not resolve", "key", env.ReferenceKey, "error", err)
		return []reference.Citation{}
	}

	chunks, err := s.loader.Chunks(path)
	if err != nil {
		s.logger.Warn("Reference file unreadable", "path", path, "error", err)
		return []reference.Citation{}
	}

	citations := reference.BuildCitations(message, env.Context, env.Topics, chunks, env.ReferenceKey, s.settings.MaxCitations)
	if citations == nil {
		return []reference.Citation{}
	}
	return citations
}

// redirectFor applies the fixed check order: language, hardware triage,
// strict topic filter. Returns the redirect kind and message, or empty
// strings when the request should reach a backend.
func (s *Service) redirectFor(message string, env scope.Envelope, citations []reference.Citation) (string, string) {
	blockContext := policy.IsScratchContext(env.Context, env.Topics) || policy.IsPiperContext(env.Context, env.Topics)

	if policy.ContainsTextLanguage(message) && blockContext {
		return "language", policy.LanguageRedirectMessage
	}

	if policy.IsPiperContext(env.Context, env.Topics) && policy.IsHardwareFailure(message) && len(citations) == 0 {
		return "hardware", policy.HardwareTriage(message)
	}

	if s.settings.TopicStrictness == "strict" && !policy.AllowedTopicOverlap(message, env.AllowedTopics) {
		return "topic", policy.TopicRedirectMessage
	}

	return "", ""
}

func (s *Service) followUps(intent policy.Intent, env scope.Envelope, summary string) []string {
	suggestions := policy.BuildFollowUpSuggestions(intent, env.Context, env.Topics, env.AllowedTopics, summary, s.settings.MaxFollowUps)
	if suggestions == nil {
		return []string{}
	}
	return suggestions
}

// persistTurns appends the exchange to conversation memory, returning
// whether compaction folded older turns into the summary. Persistence
// failures are logged, never surfaced: memory is best-effort.
func (s *Service) persistTurns(ctx context.Context, key string, state memory.State, message, reply string, intent policy.Intent, actorID string, classID int) bool {
	if !s.settings.ConversationEnabled {
		return false
	}

	turns := append(state.Turns,
		memory.Turn{Role: memory.RoleStudent, Content: message, Intent: string(intent)},
		memory.Turn{Role: memory.RoleAssistant, Content: reply})

	compacted, err := s.store.Save(ctx, key, turns, state.Summary, s.settings.ConversationTTL, actorID, classID)
	if err != nil {
		s.logger.Warn("Conversation save failed", "key", key, "error", err)
		return false
	}
	if compacted {
		s.metrics.observeCompaction()
	}
	return compacted
}

// ResetClass clears every conversation for a class, optionally archiving
// them to a JSON file first.
func (s *Service) ResetClass(ctx context.Context, req ResetClassRequest) (*ResetClassResponse, error) {
	if req.ClassID == 0 {
		return nil, newError(CodeBadRequestBody, "class_id is required")
	}

	resp := &ResetClassResponse{ClassID: req.ClassID}

	if req.ExportBeforeReset {
		snapshot := s.store.SnapshotClass(ctx, req.ClassID, s.settings.ResetMaxKeys, 0)
		if len(snapshot) > 0 {
			path, err := s.writeArchive(req.ClassID, snapshot)
			if err != nil {
				s.logger.Error("Class archive failed, aborting reset", "class_id", req.ClassID, "error", err)
				return nil, newError(CodeBackendError, "archive failed, conversations left intact")
			}
			resp.ArchivedConversations = len(snapshot)
			resp.ArchivePath = path
		}
	}

	resp.DeletedConversations = s.store.ClearClass(ctx, req.ClassID, s.settings.ResetMaxKeys)
	resp.OK = true

	s.auditor.Publish(AuditEvent{Kind: "class_reset", ClassID: req.ClassID})
	s.logger.Info("Class conversations reset",
		"class_id", req.ClassID,
		"deleted", resp.DeletedConversations,
		"archived", resp.ArchivedConversations)
	return resp, nil
}

func (s *Service) writeArchive(classID int, snapshot map[string]memory.State) (string, error) {
	if err := os.MkdirAll(s.settings.ArchiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	name := fmt.Sprintf("class-%d-%s.json", classID, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.settings.ArchiveDir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

// classifyBackendError maps backend failures to response codes.
func classifyBackendError(err error) *Error {
	switch {
	case errors.Is(err, backend.ErrNotAcknowledged):
		return newError(CodeRemoteNotAcknowledged, "remote backend requires operator acknowledgement")
	case errors.Is(err, backend.ErrNotInstalled):
		return newError(CodeBackendNotInstalled, "configured model is not installed on the backend")
	case errors.Is(err, backend.ErrUnknownBackend):
		return newError(CodeUnknownBackend, "backend is not configured")
	default:
		return newError(CodeBackendError, "backend call failed")
	}
}
