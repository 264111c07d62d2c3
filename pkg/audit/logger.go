package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/steward/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogMutation logs a successful administrative mutation
	LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error

	// LogDenied logs an access denial
	LogDenied(ctx context.Context, resourceType ResourceType, resourceID string, reason string) error

	// Close flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// NewNoOpLogger returns a logger that discards every event
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (l *noOpLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogDenied(ctx context.Context, resourceType ResourceType, resourceID string, reason string) error {
	return nil
}

func (l *noOpLogger) Close() error { return nil }

// buildBaseEvent creates an event with actor and request context populated
// from the context.
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if raw := contextkeys.GetUserID(ctx); raw != "" {
		if userID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			event.UserID = &userID
		}
	}
	return event
}

// ClientIP extracts the client IP from a request, preferring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
