// Package access is the outward face of the authorization subsystem: the
// capability endpoint every protected screen calls, the permission
// matrix editing endpoints, and the enforcement middleware that gates
// administrative routes on the caller's own resolved capabilities.
//
// Matrix management itself is a protected surface. The enforcer checks
// the caller's capability on the Security Roles area of the Admin
// application before any matrix edit, so administrators are subject to
// the same matrix they edit.
package access
