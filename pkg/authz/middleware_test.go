package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/middleware"
)

func newTestRouter(t *testing.T, resolver *Resolver) *mux.Router {
	t.Helper()

	pm := NewPermissionMiddleware(resolver)
	router := mux.NewRouter()

	router.Handle("/cases/{case_id}", pm.RequireCasePermission(LevelView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := CaseFromRequest(r)
		require.NotNil(t, ref)
		w.WriteHeader(http.StatusOK)
	})))
	router.Handle("/documents/{document_id}", pm.RequireDocumentPermission(LevelEdit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	return router
}

func doRequest(router *mux.Router, p auth.Principal, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireCasePermission(t *testing.T) {
	router := newTestRouter(t, newTestResolver(nil))

	tests := []struct {
		name      string
		principal auth.Principal
		path      string
		want      int
	}{
		{"no principal", nil, "/cases/100", http.StatusUnauthorized},
		{"creator allowed", orgUser(10, 1), "/cases/100", http.StatusOK},
		{"stranger denied", orgUser(12, 1), "/cases/100", http.StatusForbidden},
		{"cross tenant masked", orgUser(10, 2), "/cases/100", http.StatusNotFound},
		{"missing case", orgUser(10, 1), "/cases/999", http.StatusNotFound},
		{"bad id", orgUser(10, 1), "/cases/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.principal, tt.path)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireDocumentPermission(t *testing.T) {
	router := newTestRouter(t, newTestResolver(nil))

	tests := []struct {
		name      string
		principal auth.Principal
		path      string
		want      int
	}{
		{"uploader may edit", orgUser(12, 1), "/documents/500", http.StatusOK},
		{"case creator may not edit", orgUser(10, 1), "/documents/500", http.StatusForbidden},
		{"cross tenant masked", orgUser(12, 1), "/documents/600", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.principal, tt.path)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
