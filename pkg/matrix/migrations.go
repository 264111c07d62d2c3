package matrix

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all permission matrix migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create area_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS area_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL,
					area_id BIGINT NOT NULL,
					permission BOOLEAN NOT NULL DEFAULT FALSE,
					data_access_id BIGINT NOT NULL DEFAULT 7,
					can_read BOOLEAN NOT NULL DEFAULT FALSE,
					can_create BOOLEAN NOT NULL DEFAULT FALSE,
					can_update BOOLEAN NOT NULL DEFAULT FALSE,
					can_delete BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(role_id, area_id)
				);

				CREATE INDEX IF NOT EXISTS idx_area_permissions_role_id ON area_permissions(role_id);
				CREATE INDEX IF NOT EXISTS idx_area_permissions_area_id ON area_permissions(area_id);
			`,
		},
		{
			Version:     2,
			Description: "Create application_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS application_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL,
					application_id BIGINT NOT NULL,
					permission BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(role_id, application_id)
				);

				CREATE INDEX IF NOT EXISTS idx_application_permissions_role_id ON application_permissions(role_id);
				CREATE INDEX IF NOT EXISTS idx_application_permissions_application_id ON application_permissions(application_id);
			`,
		},
	}
}

// RunMigrations executes all pending matrix migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS matrix_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM matrix_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO matrix_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
