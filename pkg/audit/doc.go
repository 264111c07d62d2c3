// Package audit records security-relevant events: permission matrix
// edits, role and user administration, catalog changes, and access
// denials. Events are written synchronously to the database so a denied
// request and its audit row commit in the same causal order.
package audit
