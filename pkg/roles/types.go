package roles

import "time"

// Role is a named bundle of permissions. Users hold one or more roles;
// a role's grants live in the permission matrix keyed by role ID.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
