// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the Steward service.
//
// Logging uses stdlib slog with a JSON handler. Request-scoped loggers carry
// the request ID and acting user ID from context (see pkg/contextkeys).
//
// Metrics cover the HTTP surface plus the authorization core: capability
// resolutions, server-side denials, permission matrix writes, and capability
// cache hit rates. The health checker pings the database and, when
// configured, the Redis cache backend; readiness is gated separately from
// liveness so the service can be pulled from rotation without being killed.
package observability
