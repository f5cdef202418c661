package modules

import (
	"errors"
	"time"
)

// ErrNotFound is returned for unknown packages, modules and organizations
var ErrNotFound = errors.New("not found")

// Module is a sellable feature area (cases, documents, billing, ...)
type Module struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Package bundles modules into a subscription tier
type Package struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Entitlement is the module set an organization currently holds
type Entitlement struct {
	OrganizationID int64           `json:"organization_id"`
	Modules        map[string]bool `json:"modules"`
	SyncedAt       time.Time       `json:"synced_at"`
}

// Has reports whether the entitlement includes a module
func (e *Entitlement) Has(moduleName string) bool {
	return e != nil && e.Modules[moduleName]
}
