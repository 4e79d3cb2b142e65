package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// auditSubject is where audit events are published.
const auditSubject = "tutor.audit.event"

// AuditEvent records that something happened, never what was said. Message
// content stays out of the audit stream by construction.
type AuditEvent struct {
	Kind      string    `json:"kind"` // chat_served, redirect, error, class_reset
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Backend   string    `json:"backend,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Code      string    `json:"code,omitempty"`
	ClassID   int       `json:"class_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Auditor publishes audit events to NATS, fire-and-forget. A nil Auditor or
// a failed publish is silently tolerated: auditing must never slow down or
// fail the chat path.
type Auditor struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewAuditor creates an auditor over an established NATS connection.
func NewAuditor(nc *nats.Conn, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{nc: nc, logger: logger}
}

// Publish sends one event. Best-effort: errors are logged at debug and
// dropped.
func (a *Auditor) Publish(event AuditEvent) {
	if a == nil || a.nc == nil {
		return
	}

	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Debug("Audit event marshal failed", "kind", event.Kind, "error", err)
		return
	}

	if err := a.nc.Publish(auditSubject, data); err != nil {
		a.logger.Debug("Audit event publish failed", "kind", event.Kind, "error", err)
	}
}
