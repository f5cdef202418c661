package modules

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store persists the module catalog, packages and per-tenant entitlements
type Store struct {
	db *sql.DB
}

// NewStore creates a module store and ensures its tables exist
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &Store{db: db}
	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure module tables: %w", err)
	}

	return s, nil
}

func (s *Store) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS modules (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS packages (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS package_modules (
		package_id BIGINT NOT NULL REFERENCES packages(id),
		module_id BIGINT NOT NULL REFERENCES modules(id),
		PRIMARY KEY (package_id, module_id)
	);

	CREATE TABLE IF NOT EXISTS org_modules (
		organization_id BIGINT NOT NULL,
		module_id BIGINT NOT NULL REFERENCES modules(id),
		synced_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (organization_id, module_id)
	);

	CREATE TABLE IF NOT EXISTS employee_module_grants (
		employee_id BIGINT NOT NULL,
		module_id BIGINT NOT NULL REFERENCES modules(id),
		granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (employee_id, module_id)
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// CreateModule registers a module in the catalog
func (s *Store) CreateModule(ctx context.Context, m *Module) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO modules (name, display_name, created_at) VALUES ($1, $2, $3) RETURNING id`,
		m.Name, m.DisplayName, now,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create module: %w", err)
	}
	m.CreatedAt = now
	return nil
}

// ListModules returns the catalog ordered by name
func (s *Store) ListModules(ctx context.Context) ([]*Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, created_at FROM modules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []*Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, &m)
	}
	return modules, rows.Err()
}

// CreatePackage registers a subscription package
func (s *Store) CreatePackage(ctx context.Context, p *Package) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO packages (name, is_active, created_at) VALUES ($1, $2, $3) RETURNING id`,
		p.Name, p.IsActive, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// SetPackageModules replaces a package's module list wholesale
func (s *Store) SetPackageModules(ctx context.Context, packageID int64, moduleIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM package_modules WHERE package_id = $1`, packageID); err != nil {
		return fmt.Errorf("failed to clear package modules: %w", err)
	}

	for _, moduleID := range moduleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO package_modules (package_id, module_id) VALUES ($1, $2)`,
			packageID, moduleID); err != nil {
			return fmt.Errorf("failed to insert package module: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit package modules: %w", err)
	}
	return nil
}

// SyncOrgModulesFromPackage replaces an organization's entitlement with the
// package's current module set. Modules not in the new package are revoked
// atomically with the grant of the new ones.
func (s *Store) SyncOrgModulesFromPackage(ctx context.Context, organizationID, packageID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE id = $1 AND is_active)`, packageID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check package: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM org_modules WHERE organization_id = $1`, organizationID); err != nil {
		return fmt.Errorf("failed to clear organization modules: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO org_modules (organization_id, module_id, synced_at)
		SELECT $1, module_id, NOW() FROM package_modules WHERE package_id = $2`,
		organizationID, packageID); err != nil {
		return fmt.Errorf("failed to sync organization modules: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entitlement sync: %w", err)
	}
	return nil
}

// GetEntitlement loads an organization's current module set
func (s *Store) GetEntitlement(ctx context.Context, organizationID int64) (*Entitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name, om.synced_at
		FROM org_modules om
		JOIN modules m ON m.id = om.module_id
		WHERE om.organization_id = $1`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	defer rows.Close()

	entitlement := &Entitlement{
		OrganizationID: organizationID,
		Modules:        make(map[string]bool),
	}
	for rows.Next() {
		var name string
		var syncedAt time.Time
		if err := rows.Scan(&name, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entitlement row: %w", err)
		}
		entitlement.Modules[name] = true
		if syncedAt.After(entitlement.SyncedAt) {
			entitlement.SyncedAt = syncedAt
		}
	}
	return entitlement, rows.Err()
}

// ReplaceEmployeeGrants replaces an employee's module grants wholesale.
// Only module names present in the organization's entitlement are written;
// anything else in the request is silently dropped.
func (s *Store) ReplaceEmployeeGrants(ctx context.Context, organizationID, employeeID int64, moduleNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM employee_module_grants WHERE employee_id = $1`, employeeID); err != nil {
		return fmt.Errorf("failed to clear employee grants: %w", err)
	}

	if len(moduleNames) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employee_module_grants (employee_id, module_id, granted_at)
			SELECT $1, m.id, NOW()
			FROM modules m
			JOIN org_modules om ON om.module_id = m.id AND om.organization_id = $2
			WHERE m.name = ANY($3)`,
			employeeID, organizationID, pq.Array(moduleNames)); err != nil {
			return fmt.Errorf("failed to insert employee grants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit employee grants: %w", err)
	}
	return nil
}

// HasEmployeeGrant reports whether an employee holds a grant for a module
func (s *Store) HasEmployeeGrant(ctx context.Context, employeeID int64, moduleName string) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM employee_module_grants g
			JOIN modules m ON m.id = g.module_id
			WHERE g.employee_id = $1 AND m.name = $2
		)`, employeeID, moduleName,
	).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("failed to check employee grant: %w", err)
	}
	return has, nil
}

// ListEmployeeGrants returns the module names granted to an employee
func (s *Store) ListEmployeeGrants(ctx context.Context, employeeID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.name FROM employee_module_grants g
		JOIN modules m ON m.id = g.module_id
		WHERE g.employee_id = $1 ORDER BY m.name`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list employee grants: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
