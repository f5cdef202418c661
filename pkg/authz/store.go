package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// grant table names per resource type
var grantTables = map[ResourceType]string{
	ResourceCase:     "case_permissions",
	ResourceDocument: "document_permissions",
}

// Store implements GrantStore on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetGrant returns the grant row for (resourceType, resourceID, userID) or
// nil when none exists. The unique constraint guarantees at most one row.
func (s *Store) GetGrant(ctx context.Context, resourceType ResourceType, resourceID, userID int64) (*Grant, error) {
	table, ok := grantTables[resourceType]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}

	query := fmt.Sprintf(`SELECT resource_id, user_id, level FROM %s WHERE resource_id = $1 AND user_id = $2`, table)

	var g Grant
	err := s.db.QueryRowContext(ctx, query, resourceID, userID).Scan(&g.ResourceID, &g.UserID, &g.Level)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return &g, nil
}

// ListGrants returns all grant rows for a resource
func (s *Store) ListGrants(ctx context.Context, resourceType ResourceType, resourceID int64) ([]Grant, error) {
	table, ok := grantTables[resourceType]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}

	query := fmt.Sprintf(`SELECT resource_id, user_id, level FROM %s WHERE resource_id = $1 ORDER BY user_id`, table)

	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	grants := make([]Grant, 0)
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ResourceID, &g.UserID, &g.Level); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ReplaceGrants resets a resource's grants wholesale inside one transaction.
// Old rows are deleted first; re-granting is last-write-wins.
func (s *Store) ReplaceGrants(ctx context.Context, resourceType ResourceType, resourceID int64, grants []Grant) error {
	table, ok := grantTables[resourceType]
	if !ok {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}

	for _, g := range grants {
		if !g.Level.Valid() {
			return fmt.Errorf("invalid grant level %q for user %d", g.Level, g.UserID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE resource_id = $1`, table), resourceID); err != nil {
		return fmt.Errorf("failed to clear grants: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (resource_id, user_id, level) VALUES ($1, $2, $3)`, table)
	for _, g := range grants {
		if _, err := tx.ExecContext(ctx, insert, resourceID, g.UserID, g.Level); err != nil {
			return fmt.Errorf("failed to insert grant for user %d: %w", g.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grants: %w", err)
	}
	return nil
}
