package documents

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/authz"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
)

// RegisterCaseRoutes registers the case endpoints backing the document
// tree. AuthMiddleware must already be installed upstream.
func (h *Handlers) RegisterCaseRoutes(router *mux.Router) {
	router.HandleFunc("/cases", h.createCase).Methods("POST")

	router.Handle("/cases/{case_id}",
		h.perms.RequireCasePermission(authz.LevelView)(http.HandlerFunc(h.getCase))).Methods("GET")
	router.Handle("/cases/{case_id}/documents",
		h.perms.RequireCasePermission(authz.LevelView)(http.HandlerFunc(h.listCaseDocuments))).Methods("GET")
}

type createCaseRequest struct {
	Title      string `json:"title"`
	CaseNumber string `json:"case_number"`
	Status     string `json:"status"`
	AssignedTo *int64 `json:"assigned_to"`
}

// createCase handles POST /cases. The creating user becomes the case owner;
// legacy users create under the pre-migration tenant.
func (h *Handlers) createCase(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)

	var organizationID int64
	switch v := principal.(type) {
	case auth.OrgUser:
		organizationID = v.OrganizationID
	case auth.LegacyUser:
		organizationID = 0
	default:
		httputil.WriteForbidden(w, "case creation requires a user account")
		return
	}

	var req createCaseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" {
		httputil.WriteBadRequest(w, "title is required")
		return
	}
	if req.Status == "" {
		req.Status = "open"
	}

	c := &Case{
		OrganizationID: organizationID,
		Title:          req.Title,
		CaseNumber:     req.CaseNumber,
		Status:         req.Status,
		CreatedBy:      principal.PrincipalID(),
		AssignedTo:     req.AssignedTo,
	}
	if err := h.store.CreateCase(r.Context(), c); err != nil {
		h.logger.WithError(err).Error("failed to create case")
		httputil.WriteInternalError(w)
		return
	}

	h.recorder.RecordAsync(audit.Event{
		OrganizationID: organizationID,
		User: audit.UserSnapshot{
			ID:   principal.PrincipalID(),
			Name: principal.DisplayName(),
			Role: principalRole(principal),
		},
		ModuleName: "cases",
		EntityType: audit.EntityCase,
		EntityID:   c.ID,
		Action:     audit.ActionCreate,
		NewValue: map[string]interface{}{
			"title":       c.Title,
			"case_number": c.CaseNumber,
			"status":      c.Status,
		},
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	})

	httputil.WriteCreated(w, c)
}

func (h *Handlers) getCase(w http.ResponseWriter, r *http.Request) {
	ref := authz.CaseFromRequest(r)

	c, err := h.store.GetCase(r.Context(), ref.ID)
	if err == ErrNotFound {
		httputil.WriteNotFound(w, "case not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *Handlers) listCaseDocuments(w http.ResponseWriter, r *http.Request) {
	ref := authz.CaseFromRequest(r)

	documents, err := h.store.ListDocumentsByCase(r.Context(), ref.ID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"documents": documents,
		"count":     len(documents),
	})
}
