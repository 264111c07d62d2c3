package auth

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

// GetMigrations returns all auth migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL DEFAULT '',
					role_ids TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
			`,
		},
		{
			Version:     2,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					revoked_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_token_hash ON api_tokens(token_hash);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
	}
}

// RunMigrations executes all pending auth migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM auth_migrations ORDER BY version")
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
			"INSERT INTO auth_migrations (version, description) VALUES ($1, $2)",
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
