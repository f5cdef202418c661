package modules

import (
	"net/http"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
)

// GateMiddleware wraps routes with a module entitlement check
type GateMiddleware struct {
	gate *Gate
}

// NewGateMiddleware creates the middleware
func NewGateMiddleware(gate *Gate) *GateMiddleware {
	return &GateMiddleware{gate: gate}
}

// RequireModule gates a route on the named module. Platform admins always
// pass. Organization admins pass when their organization is entitled;
// employees additionally need a personal grant. Legacy accounts predate
// module packaging and are turned away.
func (gm *GateMiddleware) RequireModule(moduleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			switch p := principal.(type) {
			case auth.PlatformAdmin:
				next.ServeHTTP(w, r)
				return
			case auth.OrgUser:
				var employeeID *int64
				if !p.IsAdmin() {
					id := p.ID
					employeeID = &id
				}

				allowed, err := gm.gate.IsAllowed(r.Context(), p.OrganizationID, employeeID, moduleName)
				if err != nil {
					httputil.WriteInternalError(w)
					return
				}
				if !allowed {
					httputil.WriteForbidden(w, "your subscription does not include this module")
					return
				}
				next.ServeHTTP(w, r)
				return
			default:
				httputil.WriteForbidden(w, "your subscription does not include this module")
			}
		})
	}
}
