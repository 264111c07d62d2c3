package access

import (
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/matrix"
)

// AreaEntry pairs an area with a role's permission row for it. When no
// row is stored the deny default is carried so editing screens always
// have a complete grid.
type AreaEntry struct {
	AreaID     int64                 `json:"area_id"`
	Name       string                `json:"name"`
	Permission matrix.AreaPermission `json:"permission"`
}

// ApplicationAreaList groups one application's areas with a role's
// permission rows, plus the role's application gate.
type ApplicationAreaList struct {
	ApplicationID int64       `json:"application_id"`
	Name          string      `json:"name"`
	Permission    bool        `json:"permission"`
	Areas         []AreaEntry `json:"areas"`
}

// buildAreaLists assembles the editing grid: every application and area
// in the catalog, each area carrying the role's stored row or the deny
// default.
func buildAreaLists(
	apps []*catalog.Application,
	areas []*catalog.Area,
	roleID int64,
	areaRows map[int64]matrix.AreaPermission,
	appRows map[int64]matrix.ApplicationPermission,
) []ApplicationAreaList {
	areasByApp := make(map[int64][]*catalog.Area)
	for _, area := range areas {
		areasByApp[area.ApplicationID] = append(areasByApp[area.ApplicationID], area)
	}

	lists := make([]ApplicationAreaList, 0, len(apps))
	for _, app := range apps {
		list := ApplicationAreaList{
			ApplicationID: app.ID,
			Name:          app.Name,
			Permission:    appRows[app.ID].Permission,
			Areas:         make([]AreaEntry, 0, len(areasByApp[app.ID])),
		}
		for _, area := range areasByApp[app.ID] {
			row, ok := areaRows[area.ID]
			if !ok {
				row = matrix.DefaultAreaPermission(roleID, area.ID)
			}
			list.Areas = append(list.Areas, AreaEntry{
				AreaID:     area.ID,
				Name:       area.Name,
				Permission: row,
			})
		}
		lists = append(lists, list)
	}
	return lists
}
