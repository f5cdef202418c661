package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/caselane/caselane/pkg/auth"
)

// Service exposes organization and employee lookups to the rest of the
// application
type Service interface {
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	CreateOrganization(ctx context.Context, org *Organization) error
	GetEmployee(ctx context.Context, id int64) (*Employee, error)
	GetEmployeeByEmail(ctx context.Context, orgID int64, email string) (*Employee, error)
	CreateEmployee(ctx context.Context, e *Employee) error
	ListEmployees(ctx context.Context, orgID int64) ([]*Employee, error)
	GetPlatformAdminByEmail(ctx context.Context, email string) (*PlatformAdmin, error)
	GetLegacyUserByUsername(ctx context.Context, username string) (*LegacyUser, error)
}

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateOrganization creates a new organization
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}

	query := `
		INSERT INTO organizations (name, slug, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, org.Name, org.Slug, org.Status).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganization fetches an active organization by ID. Deleted
// organizations are reported as not found.
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, slug, status, created_at, updated_at
		FROM organizations
		WHERE id = $1 AND status != 'deleted'
	`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

// GetOrganizationBySlug fetches an active organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `
		SELECT id, name, slug, status, created_at, updated_at
		FROM organizations
		WHERE slug = $1 AND status != 'deleted'
	`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, slug))
}

func (s *PostgresService) scanOrganization(row *sql.Row) (*Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Status, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	return &org, nil
}

// GetEmployee fetches an employee by ID
func (s *PostgresService) GetEmployee(ctx context.Context, id int64) (*Employee, error) {
	query := `
		SELECT id, organization_id, name, email, role, is_active, created_at
		FROM employees
		WHERE id = $1
	`
	var e Employee
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Email, &e.Role, &e.IsActive, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &e, nil
}

// GetEmployeeByEmail fetches an active employee by email within an
// organization. Used by the login flow, so the password hash is included.
func (s *PostgresService) GetEmployeeByEmail(ctx context.Context, orgID int64, email string) (*Employee, error) {
	query := `
		SELECT id, organization_id, name, email, password_hash, role, is_active, created_at
		FROM employees
		WHERE organization_id = $1 AND email = $2 AND is_active
	`
	var e Employee
	err := s.db.QueryRowContext(ctx, query, orgID, email).
		Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Email, &e.PasswordHash, &e.Role, &e.IsActive, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee by email: %w", err)
	}
	return &e, nil
}

// CreateEmployee inserts an employee. PasswordHash must already be set.
func (s *PostgresService) CreateEmployee(ctx context.Context, e *Employee) error {
	if e.Role == "" {
		e.Role = auth.RoleEmployee
	}
	query := `
		INSERT INTO employees (organization_id, name, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, e.OrganizationID, e.Name, e.Email, e.PasswordHash, e.Role).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	e.IsActive = true
	return nil
}

// GetPlatformAdminByEmail fetches an active platform admin for login
func (s *PostgresService) GetPlatformAdminByEmail(ctx context.Context, email string) (*PlatformAdmin, error) {
	query := `
		SELECT id, name, email, password_hash, is_active, created_at
		FROM platform_admins
		WHERE email = $1 AND is_active
	`
	var a PlatformAdmin
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.IsActive, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform admin: %w", err)
	}
	return &a, nil
}

// GetLegacyUserByUsername fetches an active legacy user for login
func (s *PostgresService) GetLegacyUserByUsername(ctx context.Context, username string) (*LegacyUser, error) {
	query := `
		SELECT id, name, username, password_hash, role, is_active, created_at
		FROM legacy_users
		WHERE username = $1 AND is_active
	`
	var u LegacyUser
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&u.ID, &u.Name, &u.Username, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get legacy user: %w", err)
	}
	return &u, nil
}

// ListEmployees returns an organization's employees
func (s *PostgresService) ListEmployees(ctx context.Context, orgID int64) ([]*Employee, error) {
	query := `
		SELECT id, organization_id, name, email, role, is_active, created_at
		FROM employees
		WHERE organization_id = $1
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]*Employee, 0)
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Email, &e.Role, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, &e)
	}
	return employees, rows.Err()
}

// generateSlug creates a URL-safe slug from an organization name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}
