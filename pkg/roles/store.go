package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRoleNotFound is returned when a role does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrDuplicateName is returned when a role name is already taken
	ErrDuplicateName = errors.New("role name already in use")
)

// Invalidator drops cached capability resolutions that include a role.
// Implemented by the resolver caches.
type Invalidator interface {
	InvalidateRole(ctx context.Context, roleID int64)
}

// Store provides database operations for roles
type Store struct {
	db          *sql.DB
	invalidator Invalidator
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetInvalidator attaches a capability cache to invalidate on role
// deletion. May be nil.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// CreateRole creates a new role. It starts with no permission rows, so
// it grants nothing until the matrix is edited.
func (s *Store) CreateRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, created_at, updated_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("role %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	return &Role{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	role := &Role{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, id).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM roles
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var result []*Role
	for rows.Next() {
		role := &Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// UpdateRole renames a role
func (s *Store) UpdateRole(ctx context.Context, id int64, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE roles SET name = $1, updated_at = $2 WHERE id = $3
	`, name, now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("role %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}

	return s.GetRole(ctx, id)
}

// DeleteRole removes a role along with every permission row that
// references it, in one transaction. Users still listing the role ID
// simply lose its grants; resolution skips unknown roles.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM area_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete area permissions for role %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM application_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete application permissions for role %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateRole(ctx, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
