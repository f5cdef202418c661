package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Store persists audit entries to PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store and ensures the audit_logs table exists
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &Store{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return s, nil
}

func (s *Store) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		user_name VARCHAR(255) NOT NULL,
		user_role VARCHAR(50) NOT NULL,
		module_name VARCHAR(100) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id BIGINT NOT NULL,
		action_type VARCHAR(20) NOT NULL,
		action_summary TEXT NOT NULL,
		old_value JSONB,
		new_value JSONB,
		ip_address VARCHAR(45),
		user_agent TEXT,
		log_hash CHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_org ON audit_logs(organization_id, id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC);
	`

	_, err := s.db.Exec(query)
	return err
}

// Insert persists an entry and fills in its id. The caller is responsible
// for having set LogHash and CreatedAt; Insert stores what it is given.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	var oldJSON, newJSON []byte
	var err error

	if entry.OldValue != nil {
		oldJSON, err = json.Marshal(entry.OldValue)
		if err != nil {
			return fmt.Errorf("failed to marshal old value: %w", err)
		}
	}
	if entry.NewValue != nil {
		newJSON, err = json.Marshal(entry.NewValue)
		if err != nil {
			return fmt.Errorf("failed to marshal new value: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			organization_id, user_id, user_name, user_role,
			module_name, entity_type, entity_id,
			action_type, action_summary,
			old_value, new_value,
			ip_address, user_agent,
			log_hash, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11,
			$12, $13,
			$14, $15
		) RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		entry.OrganizationID, entry.UserID, entry.UserName, entry.UserRole,
		entry.ModuleName, entry.EntityType, entry.EntityID,
		entry.Action, entry.Summary,
		oldJSON, newJSON,
		nullable(entry.IPAddress), nullable(entry.UserAgent),
		entry.LogHash, entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// LatestHash returns the log_hash of the newest entry for an organization,
// or the empty string when the organization has no entries yet.
func (s *Store) LatestHash(ctx context.Context, organizationID int64) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT log_hash FROM audit_logs WHERE organization_id = $1 ORDER BY id DESC LIMIT 1`,
		organizationID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest audit hash: %w", err)
	}
	return hash, nil
}

// GetByID fetches a single entry
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM audit_logs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanEntry(rows)
}

const selectColumns = `
	SELECT
		id, organization_id, user_id, user_name, user_role,
		module_name, entity_type, entity_id,
		action_type, action_summary,
		old_value, new_value,
		ip_address, user_agent,
		log_hash, created_at`

// Search returns entries matching the filter, newest first
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	query := selectColumns + ` FROM audit_logs WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if filter.OrganizationID != nil {
		query += fmt.Sprintf(" AND organization_id = $%d", argCount)
		args = append(args, *filter.OrganizationID)
		argCount++
	}
	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, string(filter.EntityType))
		argCount++
	}
	if filter.EntityID != nil {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, *filter.EntityID)
		argCount++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action_type = $%d", argCount)
		args = append(args, string(filter.Action))
		argCount++
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	query += " ORDER BY id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	return s.queryEntries(ctx, query, args...)
}

// ListByOrganization returns an organization's entries in insertion order,
// which is the order the hash chain links them in.
func (s *Store) ListByOrganization(ctx context.Context, organizationID int64) ([]*Entry, error) {
	return s.queryEntries(ctx,
		selectColumns+` FROM audit_logs WHERE organization_id = $1 ORDER BY id ASC`,
		organizationID)
}

// VerifyChain walks an organization's entries oldest to newest, recomputing
// each hash from the previous one. It stops at the first mismatch.
func (s *Store) VerifyChain(ctx context.Context, organizationID int64) (*VerifyResult, error) {
	entries, err := s.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		OrganizationID: organizationID,
		Valid:          true,
	}

	previousHash := ""
	for _, entry := range entries {
		result.EntriesChecked++
		if ComputeHash(previousHash, entry) != entry.LogHash {
			result.Valid = false
			result.FirstBadEntry = entry.ID
			return result, nil
		}
		previousHash = entry.LogHash
	}

	return result, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var oldJSON, newJSON []byte
	var ipAddress, userAgent sql.NullString

	err := rows.Scan(
		&entry.ID, &entry.OrganizationID, &entry.UserID, &entry.UserName, &entry.UserRole,
		&entry.ModuleName, &entry.EntityType, &entry.EntityID,
		&entry.Action, &entry.Summary,
		&oldJSON, &newJSON,
		&ipAddress, &userAgent,
		&entry.LogHash, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(oldJSON) > 0 {
		if err := json.Unmarshal(oldJSON, &entry.OldValue); err != nil {
			return nil, fmt.Errorf("failed to unmarshal old value: %w", err)
		}
	}
	if len(newJSON) > 0 {
		if err := json.Unmarshal(newJSON, &entry.NewValue); err != nil {
			return nil, fmt.Errorf("failed to unmarshal new value: %w", err)
		}
	}
	entry.IPAddress = ipAddress.String
	entry.UserAgent = userAgent.String

	return &entry, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
