package resolver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/platinummonkey/steward/pkg/matrix"
)

// AreaCapability is the effective permission of a principal within one
// area after union across roles. It carries the same shape every
// protected screen consumes.
type AreaCapability struct {
	AreaID       int64  `json:"area_id"`
	AreaName     string `json:"area_name"`
	Permission   bool   `json:"permission"`
	DataAccessID int64  `json:"data_access_id"`
	CanRead      bool   `json:"can_read"`
	CanCreate    bool   `json:"can_create"`
	CanUpdate    bool   `json:"can_update"`
	CanDelete    bool   `json:"can_delete"`
}

// Editable reports the degraded flag list screens use: a record grid is
// editable when the principal may create or update in the area.
func (c AreaCapability) Editable() bool {
	return c.CanCreate || c.CanUpdate
}

// Allows reports whether the capability permits the action
func (c AreaCapability) Allows(action matrix.Action) bool {
	if !c.Permission {
		return false
	}
	switch action {
	case matrix.ActionRead:
		return c.CanRead
	case matrix.ActionCreate:
		return c.CanCreate
	case matrix.ActionUpdate:
		return c.CanUpdate
	case matrix.ActionDelete:
		return c.CanDelete
	}
	return false
}

// ApplicationCapability is a principal's view of one application: the
// open gate plus every area the principal can see within it.
type ApplicationCapability struct {
	ApplicationID int64                      `json:"application_id"`
	Name          string                     `json:"name"`
	Permission    bool                       `json:"permission"`
	Areas         map[int64]AreaCapability   `json:"areas"`
}

// CapabilityMap is the complete resolved capability of a principal,
// keyed by application ID. Applications whose gate is closed for every
// role are absent entirely, as are areas without an open area gate.
type CapabilityMap map[int64]ApplicationCapability

// Area looks up a capability by application and area, returning the deny
// default when either is absent.
func (m CapabilityMap) Area(applicationID, areaID int64) AreaCapability {
	app, ok := m[applicationID]
	if !ok {
		return denyCapability(areaID)
	}
	area, ok := app.Areas[areaID]
	if !ok {
		return denyCapability(areaID)
	}
	return area
}

func denyCapability(areaID int64) AreaCapability {
	def := matrix.DefaultAreaPermission(0, areaID)
	return AreaCapability{
		AreaID:       areaID,
		Permission:   false,
		DataAccessID: def.DataAccessID,
	}
}

// CacheKey builds the canonical cache key for a role set. Order and
// duplicates in the input do not change the key.
func CacheKey(roleIDs []int64) string {
	unique := make([]int64, 0, len(roleIDs))
	seen := make(map[int64]bool, len(roleIDs))
	for _, id := range roleIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	parts := make([]string, len(unique))
	for i, id := range unique {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
