package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/autoreply/internal/command"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventCommand       EventType = "command"
	EventCommandDenied EventType = "command_denied"
	EventAuthSuccess   EventType = "auth_success"
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Scope     string            `json:"scope,omitempty"`
	SenderID  string            `json:"sender_id,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      string            `json:"args,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil disables writing.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Args, Detail and Metadata values.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes audit events as JSONL. It implements command.Auditor.
type AuditLogger struct {
	writer      io.Writer
	redactor    *Redactor
	onEvent     func(AuditEvent)
	now         func() time.Time
	mu          sync.Mutex
	writeErrors atomic.Int64
}

var _ command.Auditor = (*AuditLogger)(nil)

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// OpenAuditFile opens path for appending, creating it and its directory
// with owner-only permissions.
func OpenAuditFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("security: audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("security: audit file: %w", err)
	}
	return f, nil
}

// Log stamps and writes event. The caller's Metadata map is never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.now()
	if len(event.Metadata) > 0 {
		event.Metadata = maps.Clone(event.Metadata)
	}

	if l.redactor != nil {
		event.Args = l.redactor.Redact(event.Args)
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
		}
	}
}

// AuditCommand records a privileged command attempt.
func (l *AuditLogger) AuditCommand(_ context.Context, ev command.AuditEvent) {
	typ := EventCommand
	if !ev.Allowed {
		typ = EventCommandDenied
	}
	l.Log(AuditEvent{
		Type:     typ,
		Scope:    string(ev.Scope),
		SenderID: ev.Sender.String(),
		Command:  ev.Command,
		Args:     ev.Args,
		Outcome:  ev.Outcome,
	})
}

// WriteErrors returns the number of events that could not be written.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrors.Load()
}
