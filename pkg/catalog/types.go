package catalog

import "time"

// DefaultDataAccessTierID is the data-access tier applied when a role has no
// explicit grant for an area. This id is a system-wide constant ("User
// Level") and must remain stable: permission resolution and the test suite
// both depend on it.
const DefaultDataAccessTierID int64 = 7

// Built-in catalog entries created by EnsureDefaults. The admin application
// hosts the areas that gate Steward's own management screens, including the
// Security Roles area that protects the permission matrix itself.
const (
	AdminApplicationName = "Admin"

	AreaApplications  = "Applications"
	AreaAreas         = "Areas"
	AreaUsers         = "Users"
	AreaSecurityRoles = "Security Roles"
)

// Application is a top-level product or module gated by the permission
// matrix. Identity is immutable; name and url are editable by admins.
type Application struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Area is a feature or subsection within exactly one application; the finest
// grained unit the permission matrix gates.
type Area struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ApplicationID int64     `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DataAccessTier is one level of the ordered row-level visibility
// enumeration. Tiers are referenced by id, never embedded; ordering follows
// the numeric id.
type DataAccessTier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BuiltInDataAccessTiers returns the fixed tier enumeration seeded at
// startup. Ids are stable and ordered; id 7 is the default "User Level".
func BuiltInDataAccessTiers() []DataAccessTier {
	return []DataAccessTier{
		{ID: 1, Name: "Own Records Only"},
		{ID: 2, Name: "Team Level"},
		{ID: 3, Name: "Department Level"},
		{ID: 4, Name: "Business Unit Level"},
		{ID: 5, Name: "Division Level"},
		{ID: 6, Name: "Company Level"},
		{ID: 7, Name: "User Level"},
	}
}
