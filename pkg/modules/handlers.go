package modules

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
)

// Handlers exposes the entitlement management API
type Handlers struct {
	store    *Store
	gate     *Gate
	recorder *audit.Recorder
}

// NewHandlers creates module handlers
func NewHandlers(store *Store, gate *Gate, recorder *audit.Recorder) *Handlers {
	return &Handlers{store: store, gate: gate, recorder: recorder}
}

// RegisterRoutes registers entitlement routes. Catalog and package routes
// are platform-admin only; grant routes are for organization admins.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	admin := router.NewRoute().Subrouter()
	admin.Use(middleware.RequirePlatformAdmin)
	admin.HandleFunc("/modules", h.createModule).Methods("POST")
	admin.HandleFunc("/packages", h.createPackage).Methods("POST")
	admin.HandleFunc("/packages/{package_id}/modules", h.setPackageModules).Methods("PUT")
	admin.HandleFunc("/organizations/{org_id}/package", h.assignPackage).Methods("PUT")

	router.HandleFunc("/modules", h.listModules).Methods("GET")

	org := router.NewRoute().Subrouter()
	org.Use(middleware.RequireOrgAdmin)
	org.HandleFunc("/entitlement", h.getEntitlement).Methods("GET")
	org.HandleFunc("/employees/{employee_id}/modules", h.replaceEmployeeGrants).Methods("PUT")
}

type createModuleRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (h *Handlers) createModule(w http.ResponseWriter, r *http.Request) {
	var req createModuleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}

	m := &Module{Name: req.Name, DisplayName: req.DisplayName}
	if err := h.store.CreateModule(r.Context(), m); err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, m)
}

func (h *Handlers) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.store.ListModules(r.Context())
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"modules": modules})
}

type createPackageRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) createPackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	p := &Package{Name: req.Name, IsActive: true}
	if err := h.store.CreatePackage(r.Context(), p); err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, p)
}

type setPackageModulesRequest struct {
	ModuleIDs []int64 `json:"module_ids"`
}

func (h *Handlers) setPackageModules(w http.ResponseWriter, r *http.Request) {
	packageID, ok := httputil.ParsePathInt64OrError(w, r, "package_id")
	if !ok {
		return
	}

	var req setPackageModulesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.SetPackageModules(r.Context(), packageID, req.ModuleIDs); err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteNoContent(w)
}

type assignPackageRequest struct {
	PackageID int64 `json:"package_id"`
}

// assignPackage handles PUT /organizations/{org_id}/package: the full
// entitlement replace. The gate's cache entry is dropped so the new module
// set applies to the next request.
func (h *Handlers) assignPackage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req assignPackageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.SyncOrgModulesFromPackage(r.Context(), orgID, req.PackageID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "package not found")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	h.gate.Invalidate(orgID)

	entitlement, err := h.store.GetEntitlement(r.Context(), orgID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, orgID, req.PackageID, audit.ActionUpdate, map[string]interface{}{
		"package_id": req.PackageID,
		"modules":    moduleNames(entitlement),
	})

	httputil.WriteSuccess(w, entitlement)
}

func (h *Handlers) getEntitlement(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)

	var orgID int64
	switch p := principal.(type) {
	case auth.OrgUser:
		orgID = p.OrganizationID
	case auth.PlatformAdmin:
		id := httputil.ParseQueryInt64Ptr(r, "organization_id")
		if id == nil {
			httputil.WriteBadRequest(w, "organization_id is required")
			return
		}
		orgID = *id
	}

	entitlement, err := h.store.GetEntitlement(r.Context(), orgID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, entitlement)
}

type replaceGrantsRequest struct {
	Modules []string `json:"modules"`
}

// replaceEmployeeGrants handles PUT /employees/{employee_id}/modules. The
// write is constrained to the organization's entitlement; requested names
// outside it are dropped rather than rejected.
func (h *Handlers) replaceEmployeeGrants(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	orgUser, ok := principal.(auth.OrgUser)
	if !ok {
		httputil.WriteForbidden(w, "employee grants are managed by organization admins")
		return
	}

	employeeID, ok := httputil.ParsePathInt64OrError(w, r, "employee_id")
	if !ok {
		return
	}

	var req replaceGrantsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.ReplaceEmployeeGrants(r.Context(), orgUser.OrganizationID, employeeID, req.Modules); err != nil {
		httputil.WriteInternalError(w)
		return
	}

	granted, err := h.store.ListEmployeeGrants(r.Context(), employeeID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, orgUser.OrganizationID, employeeID, audit.ActionGrant, map[string]interface{}{
		"employee_id": employeeID,
		"modules":     granted,
	})

	httputil.WriteSuccess(w, map[string]interface{}{"modules": granted})
}

func moduleNames(e *Entitlement) []string {
	names := make([]string, 0, len(e.Modules))
	for name := range e.Modules {
		names = append(names, name)
	}
	return names
}

func (h *Handlers) recordEvent(r *http.Request, organizationID, entityID int64, action audit.ActionType, newValue map[string]interface{}) {
	principal := middleware.GetPrincipal(r)

	h.recorder.RecordAsync(audit.Event{
		OrganizationID: organizationID,
		User: audit.UserSnapshot{
			ID:   principal.PrincipalID(),
			Name: principal.DisplayName(),
			Role: principalRole(principal),
		},
		ModuleName: "subscriptions",
		EntityType: audit.EntitySubscription,
		EntityID:   entityID,
		Action:     action,
		NewValue:   newValue,
		IPAddress:  httputil.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

func principalRole(p auth.Principal) string {
	switch v := p.(type) {
	case auth.PlatformAdmin:
		return "platform_admin"
	case auth.OrgUser:
		return string(v.Role)
	case auth.LegacyUser:
		return v.Role
	default:
		return ""
	}
}
