package modules

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/middleware"
)

func newGatedHandler(source EntitlementSource, moduleName string) http.Handler {
	gate := NewGate(source, nil)
	gm := NewGateMiddleware(gate)
	return gm.RequireModule(moduleName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func gatedRequest(handler http.Handler, p auth.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRequireModule(t *testing.T) {
	source := &fakeSource{
		entitlements: map[int64]map[string]bool{1: {"cases": true}},
		grants:       map[int64]map[string]bool{7: {"cases": true}},
	}
	handler := newGatedHandler(source, "cases")

	tests := []struct {
		name      string
		principal auth.Principal
		want      int
	}{
		{"unauthenticated", nil, http.StatusUnauthorized},
		{"platform admin passes", auth.PlatformAdmin{ID: 1}, http.StatusOK},
		{"org admin of entitled org passes", auth.OrgUser{ID: 2, OrganizationID: 1, Role: auth.RoleOrgAdmin}, http.StatusOK},
		{"org admin of unentitled org denied", auth.OrgUser{ID: 2, OrganizationID: 9, Role: auth.RoleOrgAdmin}, http.StatusForbidden},
		{"employee with personal grant passes", auth.OrgUser{ID: 7, OrganizationID: 1, Role: auth.RoleEmployee}, http.StatusOK},
		{"employee without personal grant denied", auth.OrgUser{ID: 8, OrganizationID: 1, Role: auth.RoleEmployee}, http.StatusForbidden},
		{"legacy accounts predate modules and are denied", auth.LegacyUser{ID: 4, Role: "clerk"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := gatedRequest(handler, tt.principal)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
