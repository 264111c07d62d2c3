package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store provides read and retention operations over recorded audit events
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns audit events matching the filter, newest first
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status,
		       user_id, username,
		       resource_type, resource_id, resource_name,
		       ip_address, request_id, method, path,
		       message, error_message, metadata, changes
		FROM audit_events
	`

	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= "+arg(*filter.EndTime))
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = "+arg(*filter.UserID))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = arg(string(et))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+arg(string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+arg(filter.ResourceID))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// PruneOlderThan deletes events older than the cutoff and returns how
// many were removed. Used by the retention job.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned audit events: %w", err)
	}
	return affected, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	event := &Event{}
	var (
		userID       sql.NullInt64
		username     sql.NullString
		resourceType sql.NullString
		resourceID   sql.NullString
		resourceName sql.NullString
		ipAddress    sql.NullString
		requestID    sql.NullString
		method       sql.NullString
		path         sql.NullString
		message      sql.NullString
		errorMessage sql.NullString
		metadataJSON sql.NullString
		changesJSON  sql.NullString
	)

	err := rows.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&userID, &username,
		&resourceType, &resourceID, &resourceName,
		&ipAddress, &requestID, &method, &path,
		&message, &errorMessage, &metadataJSON, &changesJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	if userID.Valid {
		event.UserID = &userID.Int64
	}
	event.Username = username.String
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resourceID.String
	event.ResourceName = resourceName.String
	event.IPAddress = ipAddress.String
	event.RequestID = requestID.String
	event.Method = method.String
	event.Path = path.String
	event.Message = message.String
	event.ErrorMessage = errorMessage.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
	}
	if changesJSON.Valid && changesJSON.String != "" {
		if err := json.Unmarshal([]byte(changesJSON.String), &event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit changes: %w", err)
		}
	}

	return event, nil
}
