package matrix

import (
	"time"

	"github.com/platinummonkey/steward/pkg/catalog"
)

// Action identifies one of the four record operations gated per area
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every gated action
func Actions() []Action {
	return []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
}

// AreaPermission is one cell of the permission matrix: what a single
// role may do within a single area. Permission is the area gate; when it
// is false the CRUD flags are irrelevant and the area is invisible to
// the role regardless of what they say.
type AreaPermission struct {
	ID           int64     `json:"id,omitempty"`
	RoleID       int64     `json:"role_id"`
	AreaID       int64     `json:"area_id"`
	Permission   bool      `json:"permission"`
	DataAccessID int64     `json:"data_access_id"`
	CanRead      bool      `json:"can_read"`
	CanCreate    bool      `json:"can_create"`
	CanUpdate    bool      `json:"can_update"`
	CanDelete    bool      `json:"can_delete"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// DefaultAreaPermission is the implied row for a role/area pair with no
// stored row: everything denied at the default data access tier.
func DefaultAreaPermission(roleID, areaID int64) AreaPermission {
	return AreaPermission{
		RoleID:       roleID,
		AreaID:       areaID,
		Permission:   false,
		DataAccessID: catalog.DefaultDataAccessTierID,
	}
}

// Allows reports whether the row permits the action. The area gate
// dominates: a closed gate denies every action.
func (p AreaPermission) Allows(action Action) bool {
	if !p.Permission {
		return false
	}
	switch action {
	case ActionRead:
		return p.CanRead
	case ActionCreate:
		return p.CanCreate
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	}
	return false
}

// ApplicationPermission is a role's gate on an entire application.
// Absence of a row means the application is hidden from the role.
type ApplicationPermission struct {
	ID            int64     `json:"id,omitempty"`
	RoleID        int64     `json:"role_id"`
	ApplicationID int64     `json:"application_id"`
	Permission    bool      `json:"permission"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// AreaPermissionPatch is a partial update to an area permission row.
// Nil fields keep the stored value; on first write they take the deny
// defaults.
type AreaPermissionPatch struct {
	Permission   *bool  `json:"permission,omitempty"`
	DataAccessID *int64 `json:"data_access_id,omitempty"`
	CanRead      *bool  `json:"can_read,omitempty"`
	CanCreate    *bool  `json:"can_create,omitempty"`
	CanUpdate    *bool  `json:"can_update,omitempty"`
	CanDelete    *bool  `json:"can_delete,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p AreaPermissionPatch) IsEmpty() bool {
	return p.Permission == nil && p.DataAccessID == nil &&
		p.CanRead == nil && p.CanCreate == nil &&
		p.CanUpdate == nil && p.CanDelete == nil
}
