package authz

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
	"github.com/caselane/caselane/pkg/observability"
)

// Handlers exposes grant administration over HTTP. Reading or replacing a
// resource's grants requires full rights on the resource itself.
type Handlers struct {
	grants   GrantStore
	perms    *PermissionMiddleware
	recorder *audit.Recorder
	logger   *observability.Logger
}

// NewHandlers creates the grant administration handler set
func NewHandlers(grants GrantStore, perms *PermissionMiddleware, recorder *audit.Recorder, logger *observability.Logger) *Handlers {
	return &Handlers{grants: grants, perms: perms, recorder: recorder, logger: logger}
}

// RegisterRoutes registers grant routes. AuthMiddleware must already be
// installed on the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	caseOwner := router.NewRoute().Subrouter()
	caseOwner.Use(h.perms.RequireCasePermission(LevelDelete))
	caseOwner.HandleFunc("/cases/{case_id}/permissions", h.listCaseGrants).Methods(http.MethodGet)
	caseOwner.HandleFunc("/cases/{case_id}/permissions", h.replaceCaseGrants).Methods(http.MethodPut)

	docOwner := router.NewRoute().Subrouter()
	docOwner.Use(h.perms.RequireDocumentPermission(LevelDelete))
	docOwner.HandleFunc("/documents/{document_id}/permissions", h.listDocumentGrants).Methods(http.MethodGet)
	docOwner.HandleFunc("/documents/{document_id}/permissions", h.replaceDocumentGrants).Methods(http.MethodPut)
}

type grantInput struct {
	UserID int64 `json:"user_id"`
	Level  Level `json:"level"`
}

type replaceGrantsRequest struct {
	Grants []grantInput `json:"grants"`
}

func (h *Handlers) listCaseGrants(w http.ResponseWriter, r *http.Request) {
	ref := CaseFromRequest(r)
	h.listGrants(w, r, ResourceCase, ref.ID)
}

func (h *Handlers) listDocumentGrants(w http.ResponseWriter, r *http.Request) {
	ref := DocumentFromRequest(r)
	h.listGrants(w, r, ResourceDocument, ref.ID)
}

func (h *Handlers) listGrants(w http.ResponseWriter, r *http.Request, resourceType ResourceType, resourceID int64) {
	grants, err := h.grants.ListGrants(r.Context(), resourceType, resourceID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list grants")
		httputil.WriteInternalError(w)
		return
	}

	out := make([]grantInput, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantInput{UserID: g.UserID, Level: g.Level})
	}
	httputil.WriteSuccess(w, out)
}

func (h *Handlers) replaceCaseGrants(w http.ResponseWriter, r *http.Request) {
	ref := CaseFromRequest(r)
	h.replaceGrants(w, r, ResourceCase, ref.ID, ref.OrganizationID, audit.EntityCase)
}

func (h *Handlers) replaceDocumentGrants(w http.ResponseWriter, r *http.Request) {
	ref := DocumentFromRequest(r)
	h.replaceGrants(w, r, ResourceDocument, ref.ID, ref.OrganizationID, audit.EntityDocument)
}

func (h *Handlers) replaceGrants(w http.ResponseWriter, r *http.Request, resourceType ResourceType, resourceID, orgID int64, entity audit.EntityType) {
	var req replaceGrantsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	seen := make(map[int64]bool, len(req.Grants))
	grants := make([]Grant, 0, len(req.Grants))
	for _, g := range req.Grants {
		if !g.Level.Valid() {
			httputil.WriteBadRequest(w, fmt.Sprintf("unknown permission level %q", g.Level))
			return
		}
		if seen[g.UserID] {
			httputil.WriteBadRequest(w, fmt.Sprintf("duplicate grant for user %d", g.UserID))
			return
		}
		seen[g.UserID] = true
		grants = append(grants, Grant{ResourceID: resourceID, UserID: g.UserID, Level: g.Level})
	}

	old, err := h.grants.ListGrants(r.Context(), resourceType, resourceID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load existing grants")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.grants.ReplaceGrants(r.Context(), resourceType, resourceID, grants); err != nil {
		h.logger.WithError(err).Error("failed to replace grants")
		httputil.WriteInternalError(w)
		return
	}

	h.recordReplace(r, resourceID, orgID, entity, old, grants)
	httputil.WriteNoContent(w)
}

func (h *Handlers) recordReplace(r *http.Request, resourceID, orgID int64, entity audit.EntityType, old []Grant, next []Grant) {
	p := middleware.GetPrincipal(r)

	action := audit.ActionGrant
	if len(next) < len(old) {
		action = audit.ActionRevoke
	}

	h.recorder.RecordAsync(audit.Event{
		OrganizationID: orgID,
		User:           principalSnapshot(p),
		ModuleName:     "permissions",
		EntityType:     entity,
		EntityID:       resourceID,
		Action:         action,
		OldValue:       grantsValue(old),
		NewValue:       grantsValue(next),
		IPAddress:      httputil.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})
}

// grantsValue renders a grant set as a user_id keyed map for the audit diff
func grantsValue(grants []Grant) map[string]interface{} {
	v := make(map[string]interface{}, len(grants))
	for _, g := range grants {
		v[fmt.Sprintf("user_%d", g.UserID)] = string(g.Level)
	}
	return v
}

func principalSnapshot(p auth.Principal) audit.UserSnapshot {
	s := audit.UserSnapshot{}
	if p == nil {
		return s
	}
	s.ID = p.PrincipalID()
	s.Name = p.DisplayName()
	switch v := p.(type) {
	case auth.PlatformAdmin:
		s.Role = "platform_admin"
	case auth.OrgUser:
		s.Role = string(v.Role)
	case auth.LegacyUser:
		s.Role = v.Role
	}
	return s
}
