package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUsername is returned when a username is already taken
	ErrDuplicateUsername = errors.New("username already in use")
)

// Invalidator drops cached capability resolutions that include a role
type Invalidator interface {
	InvalidateRole(ctx context.Context, roleID int64)
}

// UserStore provides database operations for user accounts
type UserStore struct {
	db          *sql.DB
	invalidator Invalidator
}

// NewUserStore creates a new user store
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// SetInvalidator attaches a capability cache. Role assignment changes
// do not alter what a role grants, so nothing is invalidated today, but
// the hook keeps the wiring uniform with the matrix and role stores.
func (s *UserStore) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// CreateUser creates a new user with the given role assignment
func (s *UserStore) CreateUser(ctx context.Context, username, email string, roleIDs []int64) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, role_ids, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		RETURNING id
	`, username, email, JoinRoleIDs(roleIDs), now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", username, ErrDuplicateUsername)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &User{
		ID:        id,
		Username:  username,
		Email:     email,
		RoleIDs:   roleIDs,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetUser retrieves a user by ID
func (s *UserStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id = $1", id)
}

// GetUserByUsername retrieves a user by username
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username = $1", username)
}

func (s *UserStore) getUser(ctx context.Context, where string, arg interface{}) (*User, error) {
	user := &User{}
	var joined string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role_ids, active, created_at, updated_at
		FROM users
		WHERE `+where, arg).Scan(
		&user.ID, &user.Username, &user.Email, &joined, &user.Active,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %v: %w", arg, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.RoleIDs, err = ParseRoleIDs(joined)
	if err != nil {
		return nil, fmt.Errorf("corrupt role list for user %d: %w", user.ID, err)
	}
	return user, nil
}

// ListUsers returns all users ordered by username
func (s *UserStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, role_ids, active, created_at, updated_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		var joined string
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &joined, &user.Active,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.RoleIDs, err = ParseRoleIDs(joined)
		if err != nil {
			return nil, fmt.Errorf("corrupt role list for user %d: %w", user.ID, err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's email and active flag
func (s *UserStore) UpdateUser(ctx context.Context, id int64, email string, active bool) (*User, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $1, active = $2, updated_at = $3 WHERE id = $4
	`, email, active, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return s.GetUser(ctx, id)
}

// SetUserRoles replaces a user's role assignment
func (s *UserStore) SetUserRoles(ctx context.Context, id int64, roleIDs []int64) (*User, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role_ids = $1, updated_at = $2 WHERE id = $3
	`, JoinRoleIDs(roleIDs), time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to set user roles: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user and revokes their tokens
func (s *UserStore) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
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
