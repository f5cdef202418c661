package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/contextkeys"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/orgs"
)

// OrgContextMiddleware resolves the {org_id} or {org_slug} path variable to
// an organization and attaches it to the request context. Routes without an
// organization variable pass through untouched.
func OrgContextMiddleware(orgService orgs.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			if orgIDStr, ok := vars["org_id"]; ok {
				orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid organization ID")
					return
				}
				org, err := orgService.GetOrganization(r.Context(), orgID)
				if err != nil {
					httputil.WriteNotFound(w, "organization not found")
					return
				}
				ctx := contextkeys.WithOrg(r.Context(), org)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if orgSlug, ok := vars["org_slug"]; ok {
				org, err := orgService.GetOrganizationBySlug(r.Context(), orgSlug)
				if err != nil {
					httputil.WriteNotFound(w, "organization not found")
					return
				}
				ctx := contextkeys.WithOrg(r.Context(), org)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetOrganization extracts the organization attached by
// OrgContextMiddleware
func GetOrganization(r *http.Request) *orgs.Organization {
	org, _ := r.Context().Value(contextkeys.OrgKey).(*orgs.Organization)
	return org
}
