package authz

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

// GetMigrations returns the grant table migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create case_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS case_permissions (
					id BIGSERIAL PRIMARY KEY,
					resource_id BIGINT NOT NULL,
					user_id BIGINT NOT NULL,
					level VARCHAR(10) NOT NULL CHECK (level IN ('VIEW', 'EDIT', 'DELETE')),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(resource_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_case_permissions_user_id ON case_permissions(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create document_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_permissions (
					id BIGSERIAL PRIMARY KEY,
					resource_id BIGINT NOT NULL,
					user_id BIGINT NOT NULL,
					level VARCHAR(10) NOT NULL CHECK (level IN ('VIEW', 'EDIT', 'DELETE')),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(resource_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_document_permissions_user_id ON document_permissions(user_id);
			`,
		},
	}
}

// RunMigrations applies the grant table migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
