package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAccessDenied          EventType = "authz.access_denied"
	EventTypeAreaPermissionUpdate  EventType = "authz.area_permission_update"
	EventTypeAppPermissionUpdate   EventType = "authz.application_permission_update"

	// Role administration events
	EventTypeRoleCreate EventType = "admin.role_create"
	EventTypeRoleUpdate EventType = "admin.role_update"
	EventTypeRoleDelete EventType = "admin.role_delete"

	// User administration events
	EventTypeUserCreate     EventType = "admin.user_create"
	EventTypeUserUpdate     EventType = "admin.user_update"
	EventTypeUserDelete     EventType = "admin.user_delete"
	EventTypeUserRoleChange EventType = "admin.user_role_change"

	// Catalog administration events
	EventTypeApplicationCreate EventType = "catalog.application_create"
	EventTypeApplicationUpdate EventType = "catalog.application_update"
	EventTypeApplicationDelete EventType = "catalog.application_delete"
	EventTypeAreaCreate        EventType = "catalog.area_create"
	EventTypeAreaUpdate        EventType = "catalog.area_update"
	EventTypeAreaDelete        EventType = "catalog.area_delete"

	// Authentication events
	EventTypeTokenCreate       EventType = "auth.token_create"
	EventTypeTokenRevoke       EventType = "auth.token_revoke"
	EventTypeTokenValidateFail EventType = "auth.token_validate_fail"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeRole        ResourceType = "role"
	ResourceTypeUser        ResourceType = "user"
	ResourceTypeApplication ResourceType = "application"
	ResourceTypeArea        ResourceType = "area"
	ResourceTypePermission  ResourceType = "permission"
	ResourceTypeToken       ResourceType = "token"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Before/after values for permission and catalog updates
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for querying audit events
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID     *int64
	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
