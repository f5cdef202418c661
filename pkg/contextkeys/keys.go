// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here so that
// producers and consumers of request-scoped values share one vocabulary.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains the authenticated auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all protected endpoints, permission middleware
	PrincipalKey Key = "principal"

	// OrgKey contains *orgs.Organization
	// Set by: middleware.OrgContextMiddleware (pkg/middleware/org.go)
	OrgKey Key = "organization"

	// ResourceKey contains the resource loaded by a permission middleware
	// (an *authz.CaseRef or *authz.DocumentRef), attached so handlers do
	// not re-fetch what the permission check already loaded.
	ResourceKey Key = "resource"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestID
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// WithOrg adds an organization to the context
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// WithResource adds a resolved resource to the context
func WithResource(ctx context.Context, res interface{}) context.Context {
	return context.WithValue(ctx, ResourceKey, res)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
