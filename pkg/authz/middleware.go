package authz

import (
	"net/http"

	"github.com/caselane/caselane/pkg/contextkeys"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
)

// PermissionMiddleware gates routes on resolved case/document access
type PermissionMiddleware struct {
	resolver *Resolver
}

// NewPermissionMiddleware creates permission-checking middleware
func NewPermissionMiddleware(resolver *Resolver) *PermissionMiddleware {
	return &PermissionMiddleware{resolver: resolver}
}

// RequireCasePermission gates a route carrying a {case_id} path variable.
// On allow, the loaded *CaseRef is attached to the request context.
func (pm *PermissionMiddleware) RequireCasePermission(required Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			caseID, ok := httputil.ParsePathInt64OrError(w, r, "case_id")
			if !ok {
				return
			}

			decision, ref, err := pm.resolver.ResolveCase(r.Context(), principal, caseID, required)
			if err != nil {
				httputil.WriteInternalError(w)
				return
			}

			switch decision {
			case DecisionAllow:
				ctx := contextkeys.WithResource(r.Context(), ref)
				next.ServeHTTP(w, r.WithContext(ctx))
			case DecisionNotFound:
				httputil.WriteNotFound(w, "case not found")
			default:
				httputil.WriteForbidden(w, "insufficient permissions")
			}
		})
	}
}

// RequireDocumentPermission gates a route carrying a {document_id} path
// variable. On allow, the loaded *DocumentRef is attached to the context.
func (pm *PermissionMiddleware) RequireDocumentPermission(required Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			documentID, ok := httputil.ParsePathInt64OrError(w, r, "document_id")
			if !ok {
				return
			}

			decision, ref, err := pm.resolver.ResolveDocument(r.Context(), principal, documentID, required)
			if err != nil {
				httputil.WriteInternalError(w)
				return
			}

			switch decision {
			case DecisionAllow:
				ctx := contextkeys.WithResource(r.Context(), ref)
				next.ServeHTTP(w, r.WithContext(ctx))
			case DecisionNotFound:
				httputil.WriteNotFound(w, "document not found")
			default:
				httputil.WriteForbidden(w, "insufficient permissions")
			}
		})
	}
}

// CaseFromRequest returns the CaseRef attached by RequireCasePermission
func CaseFromRequest(r *http.Request) *CaseRef {
	ref, _ := r.Context().Value(contextkeys.ResourceKey).(*CaseRef)
	return ref
}

// DocumentFromRequest returns the DocumentRef attached by
// RequireDocumentPermission
func DocumentFromRequest(r *http.Request) *DocumentRef {
	ref, _ := r.Context().Value(contextkeys.ResourceKey).(*DocumentRef)
	return ref
}
