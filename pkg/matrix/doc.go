// Package matrix is the authoritative store of the permission matrix:
// per-role area rows carrying the area gate, four CRUD flags and a data
// access tier, and per-role application rows carrying the coarser
// application gate. Absence of a row always means deny.
//
// Writes are field-level upserts so two administrators editing different
// flags of the same cell do not clobber each other, and every write
// invalidates the capability caches for the affected role.
package matrix
