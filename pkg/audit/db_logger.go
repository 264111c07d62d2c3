package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger implements audit logging to the database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger, ensuring the
// audit_events table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		resource_name VARCHAR(255),
		ip_address VARCHAR(45),
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		message TEXT,
		error_message TEXT,
		metadata TEXT,
		changes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status,
			user_id, username,
			resource_type, resource_id, resource_name,
			ip_address, request_id, method, path,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Username,
		event.ResourceType, event.ResourceID, event.ResourceName,
		event.IPAddress, event.RequestID, event.Method, event.Path,
		event.Message, event.ErrorMessage, nullable(metadataJSON), nullable(changesJSON),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// LogMutation logs a successful administrative mutation
func (l *DBLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return l.Log(ctx, event)
}

// LogDenied logs an access denial
func (l *DBLogger) LogDenied(ctx context.Context, resourceType ResourceType, resourceID string, reason string) error {
	event := buildBaseEvent(ctx, EventTypeAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return l.Log(ctx, event)
}

// Close is a no-op; writes are synchronous
func (l *DBLogger) Close() error {
	return nil
}

func nullable(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
