package matrix

// UnionAreaPermissions combines stored per-role rows for the same area
// into the effective permission of a user holding all those roles.
// Boolean fields union with OR and the data access tier takes the
// highest ID among contributing rows, so adding a role can only widen
// access. Roles without a stored row contribute nothing; an empty input
// yields the deny default.
func UnionAreaPermissions(areaID int64, perms []AreaPermission) AreaPermission {
	if len(perms) == 0 {
		return DefaultAreaPermission(0, areaID)
	}
	result := AreaPermission{AreaID: areaID}
	for _, p := range perms {
		result.Permission = result.Permission || p.Permission
		result.CanRead = result.CanRead || p.CanRead
		result.CanCreate = result.CanCreate || p.CanCreate
		result.CanUpdate = result.CanUpdate || p.CanUpdate
		result.CanDelete = result.CanDelete || p.CanDelete
		if p.DataAccessID > result.DataAccessID {
			result.DataAccessID = p.DataAccessID
		}
	}
	return result
}

// UnionApplicationPermissions reports whether any role opens the
// application gate.
func UnionApplicationPermissions(perms []ApplicationPermission) bool {
	for _, p := range perms {
		if p.Permission {
			return true
		}
	}
	return false
}
