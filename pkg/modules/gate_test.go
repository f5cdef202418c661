package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	entitlements map[int64]map[string]bool
	grants       map[int64]map[string]bool
	loads        int
}

func (f *fakeSource) GetEntitlement(ctx context.Context, organizationID int64) (*Entitlement, error) {
	f.loads++
	return &Entitlement{
		OrganizationID: organizationID,
		Modules:        f.entitlements[organizationID],
	}, nil
}

func (f *fakeSource) HasEmployeeGrant(ctx context.Context, employeeID int64, moduleName string) (bool, error) {
	return f.grants[employeeID][moduleName], nil
}

func TestGateOrgAdminFollowsOrganizationEntitlement(t *testing.T) {
	source := &fakeSource{
		entitlements: map[int64]map[string]bool{1: {"cases": true}},
	}
	gate := NewGate(source, nil)

	allowed, err := gate.IsAllowed(context.Background(), 1, nil, "cases")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = gate.IsAllowed(context.Background(), 1, nil, "billing")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGateEmployeeNeedsBothOrgAndPersonalGrant(t *testing.T) {
	employeeID := int64(7)
	source := &fakeSource{
		entitlements: map[int64]map[string]bool{1: {"cases": true, "billing": true}},
		grants:       map[int64]map[string]bool{7: {"cases": true}},
	}
	gate := NewGate(source, nil)

	allowed, err := gate.IsAllowed(context.Background(), 1, &employeeID, "cases")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Entitled organization, no personal grant.
	allowed, err = gate.IsAllowed(context.Background(), 1, &employeeID, "billing")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGateStaleEmployeeGrantDeniedAfterOrgRevoke(t *testing.T) {
	employeeID := int64(7)
	// The employee still holds a grant, but the organization lost the
	// module: organization entitlement wins.
	source := &fakeSource{
		entitlements: map[int64]map[string]bool{1: {}},
		grants:       map[int64]map[string]bool{7: {"billing": true}},
	}
	gate := NewGate(source, nil)

	allowed, err := gate.IsAllowed(context.Background(), 1, &employeeID, "billing")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGateCachesEntitlementAndInvalidates(t *testing.T) {
	source := &fakeSource{
		entitlements: map[int64]map[string]bool{1: {"cases": true}},
	}
	gate := NewGate(source, nil)

	for i := 0; i < 3; i++ {
		_, err := gate.IsAllowed(context.Background(), 1, nil, "cases")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, source.loads)

	// A sync drops the cache entry; the revoked set applies immediately.
	source.entitlements[1] = map[string]bool{}
	gate.Invalidate(1)

	allowed, err := gate.IsAllowed(context.Background(), 1, nil, "cases")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, source.loads)
}
