package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/caselane/caselane/pkg/observability"
)

// entitlementTTL bounds how stale a cached organization entitlement can
// be. Syncs invalidate eagerly; the TTL covers entitlement changes made
// outside this process.
const entitlementTTL = 30 * time.Second

// EntitlementSource is the store surface the gate reads from
type EntitlementSource interface {
	GetEntitlement(ctx context.Context, organizationID int64) (*Entitlement, error)
	HasEmployeeGrant(ctx context.Context, employeeID int64, moduleName string) (bool, error)
}

// Gate answers "may this organization (and optionally this employee) use
// this module right now". Organization entitlement is consulted on every
// call; employee grants alone are never trusted, since revoking a module
// from an organization does not clean up stale employee grants.
type Gate struct {
	source  EntitlementSource
	cache   *expirable.LRU[int64, *Entitlement]
	metrics *observability.Metrics
}

// NewGate creates a gate. metrics may be nil.
func NewGate(source EntitlementSource, metrics *observability.Metrics) *Gate {
	return &Gate{
		source:  source,
		cache:   expirable.NewLRU[int64, *Entitlement](1024, nil, entitlementTTL),
		metrics: metrics,
	}
}

// IsAllowed checks module entitlement. employeeID non-nil means the caller
// is an employee and needs a per-employee grant on top of the
// organization's entitlement; organization admins pass nil.
func (g *Gate) IsAllowed(ctx context.Context, organizationID int64, employeeID *int64, moduleName string) (bool, error) {
	entitlement, err := g.entitlement(ctx, organizationID)
	if err != nil {
		return false, err
	}

	if !entitlement.Has(moduleName) {
		g.count(moduleName, "denied_org")
		return false, nil
	}

	if employeeID != nil {
		granted, err := g.source.HasEmployeeGrant(ctx, *employeeID, moduleName)
		if err != nil {
			return false, fmt.Errorf("failed to check employee grant: %w", err)
		}
		if !granted {
			g.count(moduleName, "denied_employee")
			return false, nil
		}
	}

	g.count(moduleName, "allowed")
	return true, nil
}

// Invalidate drops an organization's cached entitlement. Called after an
// entitlement sync so the new module set takes effect immediately.
func (g *Gate) Invalidate(organizationID int64) {
	g.cache.Remove(organizationID)
}

func (g *Gate) entitlement(ctx context.Context, organizationID int64) (*Entitlement, error) {
	if cached, ok := g.cache.Get(organizationID); ok {
		return cached, nil
	}

	entitlement, err := g.source.GetEntitlement(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	g.cache.Add(organizationID, entitlement)
	return entitlement, nil
}

func (g *Gate) count(moduleName, outcome string) {
	if g.metrics != nil {
		g.metrics.ModuleGateDecisions.WithLabelValues(moduleName, outcome).Inc()
	}
}
