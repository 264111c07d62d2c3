package catalog

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

// GetMigrations returns all catalog migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create applications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS applications (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					url TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_applications_name ON applications(name);
			`,
		},
		{
			Version:     2,
			Description: "Create areas table",
			SQL: `
				CREATE TABLE IF NOT EXISTS areas (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					application_id BIGINT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(application_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_areas_application_id ON areas(application_id);
			`,
		},
		{
			Version:     3,
			Description: "Create data_access_tiers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS data_access_tiers (
					id BIGINT PRIMARY KEY,
					name VARCHAR(255) NOT NULL
				);
			`,
		},
	}
}

// RunMigrations executes all pending catalog migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, "catalog_migrations", GetMigrations())
}

func runMigrations(ctx context.Context, db *sql.DB, table string, migrations []Migration) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, table))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s ORDER BY version", table))
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

	for _, migration := range migrations {
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
			fmt.Sprintf("INSERT INTO %s (version, description) VALUES ($1, $2)", table),
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
