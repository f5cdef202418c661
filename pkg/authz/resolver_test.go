package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselane/caselane/pkg/auth"
)

type fakeLookup struct {
	cases     map[int64]*CaseRef
	documents map[int64]*DocumentRef
	err       error
}

func (f *fakeLookup) GetCaseRef(ctx context.Context, id int64) (*CaseRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	ref, ok := f.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ref, nil
}

func (f *fakeLookup) GetDocumentRef(ctx context.Context, id int64) (*DocumentRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	ref, ok := f.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ref, nil
}

type grantKey struct {
	resourceType ResourceType
	resourceID   int64
	userID       int64
}

type fakeGrants struct {
	grants map[grantKey]Level
	err    error
}

func (f *fakeGrants) GetGrant(ctx context.Context, resourceType ResourceType, resourceID, userID int64) (*Grant, error) {
	if f.err != nil {
		return nil, f.err
	}
	level, ok := f.grants[grantKey{resourceType, resourceID, userID}]
	if !ok {
		return nil, nil
	}
	return &Grant{ResourceID: resourceID, UserID: userID, Level: level}, nil
}

func (f *fakeGrants) ListGrants(ctx context.Context, resourceType ResourceType, resourceID int64) ([]Grant, error) {
	return nil, nil
}

func (f *fakeGrants) ReplaceGrants(ctx context.Context, resourceType ResourceType, resourceID int64, grants []Grant) error {
	return nil
}

func int64p(v int64) *int64 { return &v }

func newTestResolver(grants map[grantKey]Level) *Resolver {
	lookup := &fakeLookup{
		cases: map[int64]*CaseRef{
			// org 1, created by 10, assigned to 11
			100: {ID: 100, OrganizationID: 1, CreatedBy: 10, AssignedTo: int64p(11)},
			// org 2, no assignee
			200: {ID: 200, OrganizationID: 2, CreatedBy: 20},
			// pre-migration case, owned by legacy user 5
			300: {ID: 300, OrganizationID: 0, CreatedBy: 5},
		},
		documents: map[int64]*DocumentRef{
			// on case 100, uploaded by 12
			500: {ID: 500, OrganizationID: 1, CaseID: 100, UploadedBy: 12, CaseCreatedBy: 10, CaseAssignedTo: int64p(11)},
			// on case 200
			600: {ID: 600, OrganizationID: 2, CaseID: 200, UploadedBy: 20, CaseCreatedBy: 20},
		},
	}
	return NewResolver(lookup, &fakeGrants{grants: grants}, nil)
}

func orgUser(id, orgID int64) auth.OrgUser {
	return auth.OrgUser{ID: id, OrganizationID: orgID, Role: auth.RoleEmployee}
}

func TestCaseAccess(t *testing.T) {
	tests := []struct {
		name      string
		principal auth.Principal
		caseID    int64
		required  Level
		grants    map[grantKey]Level
		want      Decision
	}{
		{
			name:      "platform admin bypasses everything",
			principal: auth.PlatformAdmin{ID: 1},
			caseID:    100,
			required:  LevelDelete,
			want:      DecisionAllow,
		},
		{
			name:      "org admin allowed inside own tenant",
			principal: auth.OrgUser{ID: 50, OrganizationID: 1, Role: auth.RoleOrgAdmin},
			caseID:    100,
			required:  LevelDelete,
			want:      DecisionAllow,
		},
		{
			name:      "org admin sees not found across tenants",
			principal: auth.OrgUser{ID: 50, OrganizationID: 1, Role: auth.RoleOrgAdmin},
			caseID:    200,
			required:  LevelView,
			want:      DecisionNotFound,
		},
		{
			name:      "cross tenant employee sees not found even with a grant row",
			principal: orgUser(10, 2),
			caseID:    100,
			required:  LevelView,
			grants:    map[grantKey]Level{{ResourceCase, 100, 10}: LevelDelete},
			want:      DecisionNotFound,
		},
		{
			name:      "creator holds full rights",
			principal: orgUser(10, 1),
			caseID:    100,
			required:  LevelDelete,
			want:      DecisionAllow,
		},
		{
			name:      "assignee holds full rights",
			principal: orgUser(11, 1),
			caseID:    100,
			required:  LevelDelete,
			want:      DecisionAllow,
		},
		{
			name:      "unrelated employee without grant denied",
			principal: orgUser(12, 1),
			caseID:    100,
			required:  LevelView,
			want:      DecisionDeny,
		},
		{
			name:      "view grant satisfies view",
			principal: orgUser(12, 1),
			caseID:    100,
			required:  LevelView,
			grants:    map[grantKey]Level{{ResourceCase, 100, 12}: LevelView},
			want:      DecisionAllow,
		},
		{
			name:      "view grant does not satisfy edit",
			principal: orgUser(12, 1),
			caseID:    100,
			required:  LevelEdit,
			grants:    map[grantKey]Level{{ResourceCase, 100, 12}: LevelView},
			want:      DecisionDeny,
		},
		{
			name:      "delete grant satisfies view",
			principal: orgUser(12, 1),
			caseID:    100,
			required:  LevelView,
			grants:    map[grantKey]Level{{ResourceCase, 100, 12}: LevelDelete},
			want:      DecisionAllow,
		},
		{
			name:      "missing case is not found",
			principal: orgUser(10, 1),
			caseID:    999,
			required:  LevelView,
			want:      DecisionNotFound,
		},
		{
			name:      "legacy user reaches pre-migration case as creator",
			principal: auth.LegacyUser{ID: 5},
			caseID:    300,
			required:  LevelDelete,
			want:      DecisionAllow,
		},
		{
			name:      "legacy user sees tenant cases as not found",
			principal: auth.LegacyUser{ID: 5},
			caseID:    100,
			required:  LevelView,
			want:      DecisionNotFound,
		},
		{
			name:      "org user sees pre-migration case as not found",
			principal: orgUser(10, 1),
			caseID:    300,
			required:  LevelView,
			want:      DecisionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(tt.grants)
			decision, err := resolver.CanAccess(context.Background(), tt.principal, ResourceCase, tt.caseID, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestDocumentAccess(t *testing.T) {
	tests := []struct {
		name       string
		principal  auth.Principal
		documentID int64
		required   Level
		grants     map[grantKey]Level
		want       Decision
	}{
		{
			name:       "uploader holds full rights",
			principal:  orgUser(12, 1),
			documentID: 500,
			required:   LevelDelete,
			want:       DecisionAllow,
		},
		{
			name:       "case creator may view without a document grant",
			principal:  orgUser(10, 1),
			documentID: 500,
			required:   LevelView,
			want:       DecisionAllow,
		},
		{
			name:       "case assignee may view without a document grant",
			principal:  orgUser(11, 1),
			documentID: 500,
			required:   LevelView,
			want:       DecisionAllow,
		},
		{
			name:       "case creator may not edit without a document grant",
			principal:  orgUser(10, 1),
			documentID: 500,
			required:   LevelEdit,
			want:       DecisionDeny,
		},
		{
			name:       "case assignee may not delete without a document grant",
			principal:  orgUser(11, 1),
			documentID: 500,
			required:   LevelDelete,
			want:       DecisionDeny,
		},
		{
			name:       "document grant enables edit for case creator",
			principal:  orgUser(10, 1),
			documentID: 500,
			required:   LevelEdit,
			grants:     map[grantKey]Level{{ResourceDocument, 500, 10}: LevelEdit},
			want:       DecisionAllow,
		},
		{
			name:       "case grant does not carry over to the document",
			principal:  orgUser(13, 1),
			documentID: 500,
			required:   LevelView,
			grants:     map[grantKey]Level{{ResourceCase, 100, 13}: LevelDelete},
			want:       DecisionDeny,
		},
		{
			name:       "cross tenant document is not found",
			principal:  orgUser(10, 1),
			documentID: 600,
			required:   LevelView,
			want:       DecisionNotFound,
		},
		{
			name:       "org admin allowed inside own tenant",
			principal:  auth.OrgUser{ID: 50, OrganizationID: 2, Role: auth.RoleOrgAdmin},
			documentID: 600,
			required:   LevelDelete,
			want:       DecisionAllow,
		},
		{
			name:       "missing document is not found",
			principal:  auth.PlatformAdmin{ID: 1},
			documentID: 999,
			required:   LevelView,
			want:       DecisionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newTestResolver(tt.grants)
			decision, err := resolver.CanAccess(context.Background(), tt.principal, ResourceDocument, tt.documentID, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestResolveCaseReturnsRefOnAllow(t *testing.T) {
	resolver := newTestResolver(nil)

	decision, ref, err := resolver.ResolveCase(context.Background(), orgUser(10, 1), 100, LevelEdit)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
	require.NotNil(t, ref)
	assert.Equal(t, int64(100), ref.ID)

	decision, ref, err = resolver.ResolveCase(context.Background(), orgUser(12, 1), 100, LevelEdit)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)
	assert.Nil(t, ref)
}

func TestCanAccessInvalidLevel(t *testing.T) {
	resolver := newTestResolver(nil)
	decision, err := resolver.CanAccess(context.Background(), orgUser(10, 1), ResourceCase, 100, Level("ADMIN"))
	require.Error(t, err)
	assert.Equal(t, DecisionDeny, decision)
}

func TestLookupFailureIsAnError(t *testing.T) {
	boom := errors.New("connection refused")
	resolver := NewResolver(&fakeLookup{err: boom}, &fakeGrants{}, nil)

	decision, err := resolver.CanAccess(context.Background(), orgUser(10, 1), ResourceCase, 100, LevelView)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DecisionDeny, decision)
}

func TestGrantFailureIsAnError(t *testing.T) {
	boom := errors.New("connection refused")
	lookup := &fakeLookup{cases: map[int64]*CaseRef{100: {ID: 100, OrganizationID: 1, CreatedBy: 10}}}
	resolver := NewResolver(lookup, &fakeGrants{err: boom}, nil)

	decision, err := resolver.CanAccess(context.Background(), orgUser(12, 1), ResourceCase, 100, LevelView)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DecisionDeny, decision)
}

func TestLevelSatisfies(t *testing.T) {
	assert.True(t, LevelView.Satisfies(LevelView))
	assert.False(t, LevelView.Satisfies(LevelEdit))
	assert.False(t, LevelView.Satisfies(LevelDelete))
	assert.True(t, LevelEdit.Satisfies(LevelView))
	assert.True(t, LevelEdit.Satisfies(LevelEdit))
	assert.False(t, LevelEdit.Satisfies(LevelDelete))
	assert.True(t, LevelDelete.Satisfies(LevelView))
	assert.True(t, LevelDelete.Satisfies(LevelEdit))
	assert.True(t, LevelDelete.Satisfies(LevelDelete))
	assert.False(t, Level("ADMIN").Satisfies(LevelView))
}
