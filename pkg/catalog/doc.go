// Package catalog manages the protected-surface inventory: the
// applications served by the platform, the functional areas within each
// application, and the fixed set of data access tiers that scope how much
// data a grant exposes.
//
// The catalog is the referential backbone of the permission matrix.
// Permission rows point at catalog rows by ID; deleting a catalog entry
// orphans those rows rather than failing, and resolution skips orphans.
package catalog
