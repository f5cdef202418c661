// Package orgs manages organizations (tenants) and their employees.
package orgs

import (
	"errors"
	"time"

	"github.com/caselane/caselane/pkg/auth"
)

// ErrNotFound is returned when an organization or employee does not exist
var ErrNotFound = errors.New("not found")

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusDeleted   OrgStatus = "deleted"
)

// Organization is a tenant: the isolation boundary for all resource access
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    OrgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Employee is an organization user row
type Employee struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           auth.Role `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlatformAdmin is a control-plane operator account
type PlatformAdmin struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// LegacyUser is a pre-migration account. Legacy users only ever see
// resources recorded under organization id zero.
type LegacyUser struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal builds the auth principal for this employee
func (e *Employee) Principal() auth.Principal {
	return auth.OrgUser{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Name:           e.Name,
		Role:           e.Role,
	}
}
