package audit

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
	"github.com/caselane/caselane/pkg/observability"
)

// Handlers exposes the audit log read API. Entries are append-only; there
// are no mutation endpoints.
type Handlers struct {
	store   *Store
	metrics *observability.Metrics
}

// NewHandlers creates audit handlers
func NewHandlers(store *Store, metrics *observability.Metrics) *Handlers {
	return &Handlers{store: store, metrics: metrics}
}

// RegisterRoutes registers audit routes on the router. Callers are expected
// to have AuthMiddleware installed upstream.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/entries", h.listEntries).Methods("GET")
	router.HandleFunc("/audit/entries/{id}", h.getEntry).Methods("GET")
	router.HandleFunc("/audit/export", h.exportEntries).Methods("GET")
	router.HandleFunc("/audit/verify", h.verifyChain).Methods("GET")
}

// scopeOrganization decides which organization the caller may read.
// Platform admins may pass any organization_id; org admins are pinned to
// their own organization regardless of what they ask for.
func scopeOrganization(r *http.Request) (int64, bool) {
	principal := middleware.GetPrincipal(r)

	switch p := principal.(type) {
	case auth.PlatformAdmin:
		if orgStr := r.URL.Query().Get("organization_id"); orgStr != "" {
			if orgID, err := strconv.ParseInt(orgStr, 10, 64); err == nil {
				return orgID, true
			}
		}
		return 0, false
	case auth.OrgUser:
		if p.IsAdmin() {
			return p.OrganizationID, true
		}
	}

	return 0, false
}

func (h *Handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scopeOrganization(r)
	if !ok {
		httputil.WriteForbidden(w, "audit log access requires an administrator role")
		return
	}

	filter := parseFilter(r)
	filter.OrganizationID = &orgID

	entries, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *Handlers) getEntry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scopeOrganization(r)
	if !ok {
		httputil.WriteForbidden(w, "audit log access requires an administrator role")
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFound(w, "audit entry not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	// Cross-tenant reads look identical to missing entries.
	if _, isPlatform := middleware.GetPrincipal(r).(auth.PlatformAdmin); !isPlatform && entry.OrganizationID != orgID {
		httputil.WriteNotFound(w, "audit entry not found")
		return
	}

	httputil.WriteSuccess(w, entry)
}

func (h *Handlers) exportEntries(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scopeOrganization(r)
	if !ok {
		httputil.WriteForbidden(w, "audit log access requires an administrator role")
		return
	}

	filter := parseFilter(r)
	filter.OrganizationID = &orgID
	if filter.Limit <= 0 {
		filter.Limit = 1000
	}

	format := ExportFormat(r.URL.Query().Get("format"))

	entries, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	data, err := Export(entries, format)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.json")
	}

	w.Write(data)
}

func (h *Handlers) verifyChain(w http.ResponseWriter, r *http.Request) {
	orgID, ok := scopeOrganization(r)
	if !ok {
		httputil.WriteForbidden(w, "audit log access requires an administrator role")
		return
	}

	result, err := h.store.VerifyChain(r.Context(), orgID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	if !result.Valid && h.metrics != nil {
		h.metrics.AuditChainMismatches.Inc()
	}

	httputil.WriteSuccess(w, result)
}

func parseFilter(r *http.Request) SearchFilter {
	query := r.URL.Query()
	filter := SearchFilter{}

	if startStr := query.Get("start_time"); startStr != "" {
		if t, err := time.Parse(time.RFC3339, startStr); err == nil {
			filter.StartTime = &t
		}
	}
	if endStr := query.Get("end_time"); endStr != "" {
		if t, err := time.Parse(time.RFC3339, endStr); err == nil {
			filter.EndTime = &t
		}
	}

	if userIDStr := query.Get("user_id"); userIDStr != "" {
		if userID, err := strconv.ParseInt(userIDStr, 10, 64); err == nil {
			filter.UserID = &userID
		}
	}

	filter.EntityType = EntityType(query.Get("entity_type"))
	if entityIDStr := query.Get("entity_id"); entityIDStr != "" {
		if entityID, err := strconv.ParseInt(entityIDStr, 10, 64); err == nil {
			filter.EntityID = &entityID
		}
	}
	filter.Action = ActionType(query.Get("action_type"))

	filter.Limit = httputil.ParseQueryInt(r, "limit", 100)
	filter.Offset = httputil.ParseQueryInt(r, "offset", 0)

	return filter
}
