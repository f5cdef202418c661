package authz

import (
	"context"
	"errors"
)

// Level is a per-resource grant level. Levels are floors, not sets: a grant
// at one level satisfies checks at or below it.
type Level string

const (
	LevelView   Level = "VIEW"
	LevelEdit   Level = "EDIT"
	LevelDelete Level = "DELETE"
)

var levelRank = map[Level]int{
	LevelView:   1,
	LevelEdit:   2,
	LevelDelete: 3,
}

// Valid reports whether l is a known grant level
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Satisfies reports whether a grant at level l satisfies a check requiring
// the given level. A VIEW grant satisfies only VIEW; EDIT satisfies VIEW
// and EDIT; DELETE satisfies all three.
func (l Level) Satisfies(required Level) bool {
	return levelRank[l] >= levelRank[required] && levelRank[required] > 0
}

// Decision is the outcome of a permission check
type Decision int

const (
	// DecisionDeny means the resource exists in the principal's tenant but
	// the principal lacks the required level.
	DecisionDeny Decision = iota
	// DecisionAllow permits the action.
	DecisionAllow
	// DecisionNotFound means the resource is absent, soft-deleted, or
	// belongs to another tenant. Outside tenants cannot distinguish this
	// from a genuinely missing resource.
	DecisionNotFound
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionNotFound:
		return "not_found"
	default:
		return "deny"
	}
}

// ResourceType names the resource kinds subject to row-level grants
type ResourceType string

const (
	ResourceCase     ResourceType = "CASE"
	ResourceDocument ResourceType = "DOCUMENT"
)

// ErrNotFound is returned by lookups when the resource is absent or
// soft-deleted.
var ErrNotFound = errors.New("resource not found")

// CaseRef is the ownership shape of a case as needed for resolution
type CaseRef struct {
	ID             int64
	OrganizationID int64
	CreatedBy      int64
	AssignedTo     *int64
}

// DocumentRef is the ownership shape of a document. The owning case's
// creator and assignee are denormalized in because document VIEW follows
// the case relationship.
type DocumentRef struct {
	ID             int64
	OrganizationID int64
	CaseID         int64
	UploadedBy     int64
	CaseCreatedBy  int64
	CaseAssignedTo *int64
}

// Grant is a per-user, per-resource permission row
type Grant struct {
	ResourceID int64
	UserID     int64
	Level      Level
}

// ResourceLookup loads ownership shapes from the data layer. Implementations
// must return ErrNotFound for absent and soft-deleted rows.
type ResourceLookup interface {
	GetCaseRef(ctx context.Context, id int64) (*CaseRef, error)
	GetDocumentRef(ctx context.Context, id int64) (*DocumentRef, error)
}

// GrantStore reads and replaces grant rows
type GrantStore interface {
	// GetGrant returns the single grant row for (resourceType, resourceID,
	// userID), or nil when none exists.
	GetGrant(ctx context.Context, resourceType ResourceType, resourceID, userID int64) (*Grant, error)

	// ListGrants returns all grant rows for a resource.
	ListGrants(ctx context.Context, resourceType ResourceType, resourceID int64) ([]Grant, error)

	// ReplaceGrants deletes all grant rows for the resource and inserts the
	// given set atomically. Re-granting is last-write-wins.
	ReplaceGrants(ctx context.Context, resourceType ResourceType, resourceID int64, grants []Grant) error
}
