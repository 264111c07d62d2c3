// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: capability middleware, Access API handlers
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after token validation
	// Used by: Logger, audit trail
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetUserID retrieves the user ID from context
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
