// Package resolver turns a principal's role set into the capability map
// consumed by every protected screen: for each visible application, the
// union across roles of each area's gate, CRUD flags and data access
// tier. Applications with a closed gate and areas without an open area
// gate are absent from the map so callers cannot accidentally key into a
// denied surface.
//
// Resolution fails closed. A cache miss recomputes from the database; a
// database error returns an error the caller must treat as no access.
package resolver
