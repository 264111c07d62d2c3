package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrApplicationNotFound is returned when an application does not exist
	ErrApplicationNotFound = errors.New("application not found")
	// ErrAreaNotFound is returned when an area does not exist
	ErrAreaNotFound = errors.New("area not found")
	// ErrDuplicateName is returned when a name collides with an existing record
	ErrDuplicateName = errors.New("name already in use")
)

// Store provides database operations for applications, areas and data
// access tiers.
type Store struct {
	db *sql.DB
}

// NewStore creates a new catalog store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateApplication registers a new application
func (s *Store) CreateApplication(ctx context.Context, name, url string) (*Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("application name is required")
	}

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO applications (name, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, name, url, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("application %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		ID:        id,
		Name:      name,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetApplication retrieves an application by ID
func (s *Store) GetApplication(ctx context.Context, id int64) (*Application, error) {
	app := &Application{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, url, created_at, updated_at
		FROM applications
		WHERE id = $1
	`, id).Scan(&app.ID, &app.Name, &app.URL, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("application %d: %w", id, ErrApplicationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// GetApplicationByName retrieves an application by its unique name
func (s *Store) GetApplicationByName(ctx context.Context, name string) (*Application, error) {
	app := &Application{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, url, created_at, updated_at
		FROM applications
		WHERE name = $1
	`, name).Scan(&app.ID, &app.Name, &app.URL, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("application %q: %w", name, ErrApplicationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListApplications returns all applications ordered by name
func (s *Store) ListApplications(ctx context.Context) ([]*Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, url, created_at, updated_at
		FROM applications
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		app := &Application{}
		if err := rows.Scan(&app.ID, &app.Name, &app.URL, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApplication updates an application's name and URL
func (s *Store) UpdateApplication(ctx context.Context, id int64, name, url string) (*Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("application name is required")
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET name = $1, url = $2, updated_at = $3
		WHERE id = $4
	`, name, url, now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("application %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("application %d: %w", id, ErrApplicationNotFound)
	}

	return s.GetApplication(ctx, id)
}

// DeleteApplication removes an application. Areas under it are removed
// by the foreign key cascade; permission rows referencing them become
// orphans and are skipped during resolution until swept.
func (s *Store) DeleteApplication(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("application %d: %w", id, ErrApplicationNotFound)
	}
	return nil
}

// CreateArea registers a new area under an application
func (s *Store) CreateArea(ctx context.Context, applicationID int64, name string) (*Area, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("area name is required")
	}

	if _, err := s.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO areas (name, application_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, name, applicationID, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("area %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to create area: %w", err)
	}

	return &Area{
		ID:            id,
		Name:          name,
		ApplicationID: applicationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GetArea retrieves an area by ID
func (s *Store) GetArea(ctx context.Context, id int64) (*Area, error) {
	area := &Area{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, application_id, created_at, updated_at
		FROM areas
		WHERE id = $1
	`, id).Scan(&area.ID, &area.Name, &area.ApplicationID, &area.CreatedAt, &area.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("area %d: %w", id, ErrAreaNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get area: %w", err)
	}
	return area, nil
}

// GetAreaByName retrieves an area by name within an application
func (s *Store) GetAreaByName(ctx context.Context, applicationID int64, name string) (*Area, error) {
	area := &Area{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, application_id, created_at, updated_at
		FROM areas
		WHERE application_id = $1 AND name = $2
	`, applicationID, name).Scan(&area.ID, &area.Name, &area.ApplicationID, &area.CreatedAt, &area.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("area %q: %w", name, ErrAreaNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get area: %w", err)
	}
	return area, nil
}

// ListAreas returns areas, optionally filtered to a single application
func (s *Store) ListAreas(ctx context.Context, applicationID *int64) ([]*Area, error) {
	query := `
		SELECT id, name, application_id, created_at, updated_at
		FROM areas
	`
	var args []interface{}
	if applicationID != nil {
		query += ` WHERE application_id = $1`
		args = append(args, *applicationID)
	}
	query += ` ORDER BY application_id, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		area := &Area{}
		if err := rows.Scan(&area.ID, &area.Name, &area.ApplicationID, &area.CreatedAt, &area.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		areas = append(areas, area)
	}
	return areas, rows.Err()
}

// UpdateArea renames an area
func (s *Store) UpdateArea(ctx context.Context, id int64, name string) (*Area, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("area name is required")
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE areas
		SET name = $1, updated_at = $2
		WHERE id = $3
	`, name, now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("area %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to update area: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("area %d: %w", id, ErrAreaNotFound)
	}

	return s.GetArea(ctx, id)
}

// DeleteArea removes an area. Permission rows referencing it become
// orphans and are skipped during resolution until swept.
func (s *Store) DeleteArea(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM areas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete area: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("area %d: %w", id, ErrAreaNotFound)
	}
	return nil
}

// ListDataAccessTiers returns all data access tiers ordered by ID
func (s *Store) ListDataAccessTiers(ctx context.Context) ([]*DataAccessTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM data_access_tiers ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list data access tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*DataAccessTier
	for rows.Next() {
		tier := &DataAccessTier{}
		if err := rows.Scan(&tier.ID, &tier.Name); err != nil {
			return nil, fmt.Errorf("failed to scan data access tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// EnsureDefaults seeds the built-in data access tiers, the Admin
// application, and its administrative areas. Safe to call on every
// startup.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	for _, tier := range BuiltInDataAccessTiers() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO data_access_tiers (id, name)
			VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, tier.ID, tier.Name)
		if err != nil {
			return fmt.Errorf("failed to seed data access tier %d: %w", tier.ID, err)
		}
	}

	admin, err := s.GetApplicationByName(ctx, AdminApplicationName)
	if errors.Is(err, ErrApplicationNotFound) {
		admin, err = s.CreateApplication(ctx, AdminApplicationName, "")
	}
	if err != nil {
		return fmt.Errorf("failed to seed admin application: %w", err)
	}

	for _, name := range []string{AreaApplications, AreaAreas, AreaUsers, AreaSecurityRoles} {
		_, err := s.GetAreaByName(ctx, admin.ID, name)
		if errors.Is(err, ErrAreaNotFound) {
			_, err = s.CreateArea(ctx, admin.ID, name)
		}
		if err != nil {
			return fmt.Errorf("failed to seed admin area %q: %w", name, err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a unique constraint error from
// either postgres or sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
