package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/observability"
)

// Resolver computes effective access for a (principal, resource) pair.
// Lookups are read-only; the resolver holds no mutable state and is safe
// under arbitrary concurrent requests.
type Resolver struct {
	lookup  ResourceLookup
	grants  GrantStore
	metrics *observability.Metrics
}

// NewResolver creates a permission resolver. metrics may be nil.
func NewResolver(lookup ResourceLookup, grants GrantStore, metrics *observability.Metrics) *Resolver {
	return &Resolver{lookup: lookup, grants: grants, metrics: metrics}
}

// CanAccess resolves whether the principal may act on the resource at the
// required level. The error return covers infrastructure failures only;
// policy outcomes are expressed through the Decision.
func (r *Resolver) CanAccess(ctx context.Context, p auth.Principal, resourceType ResourceType, resourceID int64, required Level) (Decision, error) {
	if !required.Valid() {
		return DecisionDeny, fmt.Errorf("invalid permission level %q", required)
	}

	var decision Decision
	var err error
	switch resourceType {
	case ResourceCase:
		decision, err = r.resolveCase(ctx, p, resourceID, required)
	case ResourceDocument:
		decision, err = r.resolveDocument(ctx, p, resourceID, required)
	default:
		return DecisionDeny, fmt.Errorf("unknown resource type %q", resourceType)
	}
	if err != nil {
		return DecisionDeny, err
	}

	if r.metrics != nil {
		r.metrics.PermissionChecksTotal.WithLabelValues(string(resourceType), decision.String()).Inc()
	}
	return decision, nil
}

// ResolveCase is like CanAccess for a case but also returns the loaded ref
// so middleware can attach it to the request context.
func (r *Resolver) ResolveCase(ctx context.Context, p auth.Principal, caseID int64, required Level) (Decision, *CaseRef, error) {
	ref, err := r.lookup.GetCaseRef(ctx, caseID)
	if errors.Is(err, ErrNotFound) {
		return DecisionNotFound, nil, nil
	}
	if err != nil {
		return DecisionDeny, nil, fmt.Errorf("failed to load case %d: %w", caseID, err)
	}

	decision, err := r.decideCase(ctx, p, ref, required)
	if err != nil {
		return DecisionDeny, nil, err
	}
	if decision == DecisionAllow {
		return decision, ref, nil
	}
	return decision, nil, nil
}

// ResolveDocument is like CanAccess for a document, returning the ref on allow
func (r *Resolver) ResolveDocument(ctx context.Context, p auth.Principal, documentID int64, required Level) (Decision, *DocumentRef, error) {
	ref, err := r.lookup.GetDocumentRef(ctx, documentID)
	if errors.Is(err, ErrNotFound) {
		return DecisionNotFound, nil, nil
	}
	if err != nil {
		return DecisionDeny, nil, fmt.Errorf("failed to load document %d: %w", documentID, err)
	}

	decision, err := r.decideDocument(ctx, p, ref, required)
	if err != nil {
		return DecisionDeny, nil, err
	}
	if decision == DecisionAllow {
		return decision, ref, nil
	}
	return decision, nil, nil
}

func (r *Resolver) resolveCase(ctx context.Context, p auth.Principal, caseID int64, required Level) (Decision, error) {
	decision, _, err := r.ResolveCase(ctx, p, caseID, required)
	return decision, err
}

func (r *Resolver) resolveDocument(ctx context.Context, p auth.Principal, documentID int64, required Level) (Decision, error) {
	decision, _, err := r.ResolveDocument(ctx, p, documentID, required)
	return decision, err
}

// tenantDecision applies the outermost guards shared by all resource kinds.
// It returns (decision, done) where done=false means resolution continues
// with the org-user grant path.
func tenantDecision(p auth.Principal, resourceOrg int64) (Decision, auth.OrgUser, bool) {
	switch v := p.(type) {
	case auth.PlatformAdmin:
		// Super-admin bypass: impersonation and system operations.
		return DecisionAllow, auth.OrgUser{}, true
	case auth.OrgUser:
		// Tenant isolation before anything else. Cross-tenant access is
		// reported as not found so existence does not leak.
		if v.OrganizationID != resourceOrg {
			return DecisionNotFound, auth.OrgUser{}, true
		}
		if v.IsAdmin() {
			// Org admins bypass per-resource grants inside their tenant.
			return DecisionAllow, auth.OrgUser{}, true
		}
		return DecisionDeny, v, false
	case auth.LegacyUser:
		// Legacy single-tenant users only ever see pre-migration resources,
		// which carry no organization.
		if resourceOrg != 0 {
			return DecisionNotFound, auth.OrgUser{}, true
		}
		return DecisionDeny, auth.OrgUser{ID: v.ID}, false
	default:
		// Unknown principal kind: closed union violated, fail shut.
		return DecisionDeny, auth.OrgUser{}, true
	}
}

func (r *Resolver) decideCase(ctx context.Context, p auth.Principal, ref *CaseRef, required Level) (Decision, error) {
	decision, user, done := tenantDecision(p, ref.OrganizationID)
	if done {
		return decision, nil
	}

	// Creator and assignee hold full owner rights on a case.
	if ref.CreatedBy == user.ID || (ref.AssignedTo != nil && *ref.AssignedTo == user.ID) {
		return DecisionAllow, nil
	}

	grant, err := r.grants.GetGrant(ctx, ResourceCase, ref.ID, user.ID)
	if err != nil {
		return DecisionDeny, fmt.Errorf("failed to load case grant: %w", err)
	}
	if grant != nil && grant.Level.Satisfies(required) {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

func (r *Resolver) decideDocument(ctx context.Context, p auth.Principal, ref *DocumentRef, required Level) (Decision, error) {
	decision, user, done := tenantDecision(p, ref.OrganizationID)
	if done {
		return decision, nil
	}

	// The uploader holds full rights on their own document.
	if ref.UploadedBy == user.ID {
		return DecisionAllow, nil
	}

	// Read access follows the case relationship: the case's creator or
	// assignee may VIEW without a document grant. Write access never
	// inherits this way.
	if required == LevelView {
		if ref.CaseCreatedBy == user.ID || (ref.CaseAssignedTo != nil && *ref.CaseAssignedTo == user.ID) {
			return DecisionAllow, nil
		}
	}

	grant, err := r.grants.GetGrant(ctx, ResourceDocument, ref.ID, user.ID)
	if err != nil {
		return DecisionDeny, fmt.Errorf("failed to load document grant: %w", err)
	}
	if grant != nil && grant.Level.Satisfies(required) {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}
