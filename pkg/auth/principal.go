package auth

import "errors"

// Kind discriminates the principal union
type Kind string

const (
	KindPlatformAdmin Kind = "platform_admin"
	KindOrgUser       Kind = "org_user"
	KindLegacyUser    Kind = "legacy_user"
)

// Role is an organization-scoped role
type Role string

const (
	RoleOrgAdmin Role = "org_admin"
	RoleEmployee Role = "employee"
)

// Sentinel errors shared by the verification paths
var (
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrTokenExpired    = errors.New("token expired")
	ErrAccountLocked   = errors.New("account locked")
)

// Principal is an authenticated actor. It is a closed union over
// PlatformAdmin, OrgUser and LegacyUser; permission-check sites type-switch
// over the concrete kinds so a new kind cannot be silently ignored.
type Principal interface {
	PrincipalKind() Kind
	PrincipalID() int64
	DisplayName() string
}

// PlatformAdmin is a platform super-admin principal. It belongs to no
// tenant and bypasses all resource-level permission checks.
type PlatformAdmin struct {
	ID   int64
	Name string
}

func (p PlatformAdmin) PrincipalKind() Kind { return KindPlatformAdmin }
func (p PlatformAdmin) PrincipalID() int64  { return p.ID }
func (p PlatformAdmin) DisplayName() string { return p.Name }

// OrgUser is a user belonging to exactly one organization
type OrgUser struct {
	ID             int64
	OrganizationID int64
	Name           string
	Role           Role
}

func (p OrgUser) PrincipalKind() Kind { return KindOrgUser }
func (p OrgUser) PrincipalID() int64  { return p.ID }
func (p OrgUser) DisplayName() string { return p.Name }

// IsAdmin reports whether the user administers their organization
func (p OrgUser) IsAdmin() bool { return p.Role == RoleOrgAdmin }

// LegacyUser is a pre-multi-tenancy single-tenant user. Its role is a free
// string carried over from the old role table.
type LegacyUser struct {
	ID   int64
	Name string
	Role string
}

func (p LegacyUser) PrincipalKind() Kind { return KindLegacyUser }
func (p LegacyUser) PrincipalID() int64  { return p.ID }
func (p LegacyUser) DisplayName() string { return p.Name }

// OrganizationOf returns the tenant a principal belongs to. Platform admins
// and legacy users have no tenant.
func OrganizationOf(p Principal) (int64, bool) {
	if u, ok := p.(OrgUser); ok {
		return u.OrganizationID, true
	}
	return 0, false
}
