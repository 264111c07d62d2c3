// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, and bearer token authentication that attaches the
// resolved principal to the request context.
package middleware
