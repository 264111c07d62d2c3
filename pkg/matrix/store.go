package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/steward/pkg/catalog"
)

var (
	// ErrRoleNotFound is returned when the referenced role does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrAreaNotFound is returned when the referenced area does not exist
	ErrAreaNotFound = errors.New("area not found")
	// ErrApplicationNotFound is returned when the referenced application does not exist
	ErrApplicationNotFound = errors.New("application not found")
	// ErrInvalidDataAccessTier is returned when a patch names an unknown tier
	ErrInvalidDataAccessTier = errors.New("invalid data access tier")
)

// Invalidator drops cached capability resolutions that include a role.
// Implemented by the resolver caches.
type Invalidator interface {
	InvalidateRole(ctx context.Context, roleID int64)
}

// Store is the authoritative store of permission matrix rows
type Store struct {
	db          *sql.DB
	invalidator Invalidator
}

// NewStore creates a new matrix store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetInvalidator attaches a capability cache to invalidate after every
// matrix write. May be nil.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// GetAreaPermissions returns every stored area permission row for a role
func (s *Store) GetAreaPermissions(ctx context.Context, roleID int64) ([]*AreaPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role_id, area_id, permission, data_access_id,
		       can_read, can_create, can_update, can_delete,
		       created_at, updated_at
		FROM area_permissions
		WHERE role_id = $1
		ORDER BY area_id
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get area permissions: %w", err)
	}
	defer rows.Close()
	return scanAreaPermissions(rows)
}

// GetAreaPermissionsForRoles returns every stored area permission row
// for any of the given roles, grouped by area. Used by the resolver.
func (s *Store) GetAreaPermissionsForRoles(ctx context.Context, roleIDs []int64) (map[int64][]AreaPermission, error) {
	if len(roleIDs) == 0 {
		return map[int64][]AreaPermission{}, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, role_id, area_id, permission, data_access_id,
		       can_read, can_create, can_update, can_delete,
		       created_at, updated_at
		FROM area_permissions
		WHERE role_id IN (%s)
		ORDER BY area_id, role_id
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get area permissions for roles: %w", err)
	}
	defer rows.Close()

	perms, err := scanAreaPermissions(rows)
	if err != nil {
		return nil, err
	}

	byArea := make(map[int64][]AreaPermission)
	for _, p := range perms {
		byArea[p.AreaID] = append(byArea[p.AreaID], *p)
	}
	return byArea, nil
}

// GetAreaPermission returns the stored row for (role, area), or the deny
// default when no row exists. The bool reports whether a row was stored.
func (s *Store) GetAreaPermission(ctx context.Context, roleID, areaID int64) (*AreaPermission, bool, error) {
	perm := &AreaPermission{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, role_id, area_id, permission, data_access_id,
		       can_read, can_create, can_update, can_delete,
		       created_at, updated_at
		FROM area_permissions
		WHERE role_id = $1 AND area_id = $2
	`, roleID, areaID).Scan(
		&perm.ID, &perm.RoleID, &perm.AreaID, &perm.Permission, &perm.DataAccessID,
		&perm.CanRead, &perm.CanCreate, &perm.CanUpdate, &perm.CanDelete,
		&perm.CreatedAt, &perm.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		def := DefaultAreaPermission(roleID, areaID)
		return &def, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get area permission: %w", err)
	}
	return perm, true, nil
}

// UpsertAreaPermission applies a partial update to the (role, area) cell.
// Fields absent from the patch keep their stored values, or the deny
// defaults when the row is being created. The write and retained values
// resolve atomically in one statement.
func (s *Store) UpsertAreaPermission(ctx context.Context, roleID, areaID int64, patch AreaPermissionPatch) (*AreaPermission, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.checkAreaExists(ctx, areaID); err != nil {
		return nil, err
	}
	if patch.DataAccessID != nil {
		if err := s.checkDataAccessTierExists(ctx, *patch.DataAccessID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO area_permissions (
			role_id, area_id, permission, data_access_id,
			can_read, can_create, can_update, can_delete,
			created_at, updated_at
		) VALUES (
			$1, $2,
			COALESCE($3, FALSE), COALESCE($4, $5),
			COALESCE($6, FALSE), COALESCE($7, FALSE),
			COALESCE($8, FALSE), COALESCE($9, FALSE),
			$10, $10
		)
		ON CONFLICT (role_id, area_id) DO UPDATE SET
			permission     = COALESCE($3, area_permissions.permission),
			data_access_id = COALESCE($4, area_permissions.data_access_id),
			can_read       = COALESCE($6, area_permissions.can_read),
			can_create     = COALESCE($7, area_permissions.can_create),
			can_update     = COALESCE($8, area_permissions.can_update),
			can_delete     = COALESCE($9, area_permissions.can_delete),
			updated_at     = $10
	`,
		roleID, areaID,
		patch.Permission, patch.DataAccessID, catalog.DefaultDataAccessTierID,
		patch.CanRead, patch.CanCreate,
		patch.CanUpdate, patch.CanDelete,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert area permission: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}

	perm, _, err := s.GetAreaPermission(ctx, roleID, areaID)
	return perm, err
}

// GetApplicationPermission returns the stored row for (role, application),
// defaulting to a closed gate when no row exists.
func (s *Store) GetApplicationPermission(ctx context.Context, roleID, applicationID int64) (*ApplicationPermission, error) {
	perm := &ApplicationPermission{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, role_id, application_id, permission, created_at, updated_at
		FROM application_permissions
		WHERE role_id = $1 AND application_id = $2
	`, roleID, applicationID).Scan(
		&perm.ID, &perm.RoleID, &perm.ApplicationID, &perm.Permission,
		&perm.CreatedAt, &perm.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return &ApplicationPermission{RoleID: roleID, ApplicationID: applicationID, Permission: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application permission: %w", err)
	}
	return perm, nil
}

// GetApplicationPermissionsForRoles returns every stored application
// permission row for any of the given roles, grouped by application.
func (s *Store) GetApplicationPermissionsForRoles(ctx context.Context, roleIDs []int64) (map[int64][]ApplicationPermission, error) {
	if len(roleIDs) == 0 {
		return map[int64][]ApplicationPermission{}, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, role_id, application_id, permission, created_at, updated_at
		FROM application_permissions
		WHERE role_id IN (%s)
		ORDER BY application_id, role_id
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get application permissions for roles: %w", err)
	}
	defer rows.Close()

	byApp := make(map[int64][]ApplicationPermission)
	for rows.Next() {
		perm := ApplicationPermission{}
		if err := rows.Scan(
			&perm.ID, &perm.RoleID, &perm.ApplicationID, &perm.Permission,
			&perm.CreatedAt, &perm.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan application permission: %w", err)
		}
		byApp[perm.ApplicationID] = append(byApp[perm.ApplicationID], perm)
	}
	return byApp, rows.Err()
}

// UpsertApplicationPermission sets a role's gate on an application
func (s *Store) UpsertApplicationPermission(ctx context.Context, roleID, applicationID int64, permission bool) (*ApplicationPermission, error) {
	if err := s.checkRoleExists(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.checkApplicationExists(ctx, applicationID); err != nil {
		return nil, err
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_permissions (role_id, application_id, permission, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (role_id, application_id) DO UPDATE SET
			permission = $3,
			updated_at = $4
	`, roleID, applicationID, permission, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert application permission: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, roleID)
	}

	return s.GetApplicationPermission(ctx, roleID, applicationID)
}

// DeleteOrphanedRows removes matrix rows whose area or application no
// longer exists in the catalog. Returns counts of removed area and
// application rows. Run by the maintenance job; resolution already skips
// orphans, this just reclaims the storage.
func (s *Store) DeleteOrphanedRows(ctx context.Context) (int64, int64, error) {
	areaResult, err := s.db.ExecContext(ctx, `
		DELETE FROM area_permissions
		WHERE area_id NOT IN (SELECT id FROM areas)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete orphaned area permissions: %w", err)
	}
	areaRows, err := areaResult.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count orphaned area permissions: %w", err)
	}

	appResult, err := s.db.ExecContext(ctx, `
		DELETE FROM application_permissions
		WHERE application_id NOT IN (SELECT id FROM applications)
	`)
	if err != nil {
		return areaRows, 0, fmt.Errorf("failed to delete orphaned application permissions: %w", err)
	}
	appRows, err := appResult.RowsAffected()
	if err != nil {
		return areaRows, 0, fmt.Errorf("failed to count orphaned application permissions: %w", err)
	}

	return areaRows, appRows, nil
}

func (s *Store) checkRoleExists(ctx context.Context, roleID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM roles WHERE id = $1`, roleID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("role %d: %w", roleID, ErrRoleNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	return nil
}

func (s *Store) checkAreaExists(ctx context.Context, areaID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM areas WHERE id = $1`, areaID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("area %d: %w", areaID, ErrAreaNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check area: %w", err)
	}
	return nil
}

func (s *Store) checkApplicationExists(ctx context.Context, applicationID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = $1`, applicationID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("application %d: %w", applicationID, ErrApplicationNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check application: %w", err)
	}
	return nil
}

func (s *Store) checkDataAccessTierExists(ctx context.Context, tierID int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM data_access_tiers WHERE id = $1`, tierID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("data access tier %d: %w", tierID, ErrInvalidDataAccessTier)
	}
	if err != nil {
		return fmt.Errorf("failed to check data access tier: %w", err)
	}
	return nil
}

func scanAreaPermissions(rows *sql.Rows) ([]*AreaPermission, error) {
	var perms []*AreaPermission
	for rows.Next() {
		perm := &AreaPermission{}
		if err := rows.Scan(
			&perm.ID, &perm.RoleID, &perm.AreaID, &perm.Permission, &perm.DataAccessID,
			&perm.CanRead, &perm.CanCreate, &perm.CanUpdate, &perm.CanDelete,
			&perm.CreatedAt, &perm.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan area permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
