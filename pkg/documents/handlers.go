package documents

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/authz"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
	"github.com/caselane/caselane/pkg/observability"
)

// maxUploadBytes bounds multipart uploads (50 MB)
const maxUploadBytes = 50 << 20

// FileStore saves uploaded content under opaque keys
type FileStore interface {
	Save(key string, r io.Reader) (int64, error)
	Remove(key string) error
}

// OCRTrigger enqueues a document for text extraction
type OCRTrigger interface {
	Trigger(documentID int64)
}

// Handlers exposes the document HTTP API. Permission checks are installed
// as route middleware by RegisterRoutes; handlers read the pre-resolved
// resource from the request context.
type Handlers struct {
	store    *Store
	files    FileStore
	ocr      OCRTrigger
	recorder *audit.Recorder
	perms    *authz.PermissionMiddleware
	logger   *observability.Logger
}

// NewHandlers creates document handlers
func NewHandlers(store *Store, files FileStore, ocr OCRTrigger, recorder *audit.Recorder, perms *authz.PermissionMiddleware, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:    store,
		files:    files,
		ocr:      ocr,
		recorder: recorder,
		perms:    perms,
		logger:   logger,
	}
}

// RegisterRoutes registers document routes. AuthMiddleware must already be
// installed upstream.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/cases/{case_id}/documents",
		h.perms.RequireCasePermission(authz.LevelEdit)(http.HandlerFunc(h.upload))).Methods("POST")

	// Literal path first: mux matches in registration order, so the
	// {document_id} pattern would otherwise capture "search".
	router.HandleFunc("/documents/search", h.search).Methods("GET")

	router.Handle("/documents/{document_id}",
		h.perms.RequireDocumentPermission(authz.LevelView)(http.HandlerFunc(h.get))).Methods("GET")
	router.Handle("/documents/{document_id}/versions",
		h.perms.RequireDocumentPermission(authz.LevelView)(http.HandlerFunc(h.listVersions))).Methods("GET")
	router.Handle("/documents/{document_id}/versions",
		h.perms.RequireDocumentPermission(authz.LevelEdit)(http.HandlerFunc(h.addVersion))).Methods("POST")
	router.Handle("/documents/{document_id}/restore",
		h.perms.RequireDocumentPermission(authz.LevelEdit)(http.HandlerFunc(h.restore))).Methods("POST")
	router.Handle("/documents/{document_id}",
		h.perms.RequireDocumentPermission(authz.LevelDelete)(http.HandlerFunc(h.delete))).Methods("DELETE")
}

// upload handles POST /cases/{case_id}/documents. The database transaction
// commits before OCR is triggered; the trigger itself is fire-and-forget.
func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	caseRef := authz.CaseFromRequest(r)
	principal := middleware.GetPrincipal(r)

	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	key := storageKey(caseRef.OrganizationID, header.Filename)
	size, err := h.files.Save(key, file)
	if err != nil {
		h.logger.WithError(err).Error("failed to store uploaded file")
		httputil.WriteInternalError(w)
		return
	}

	doc := &Document{
		OrganizationID: caseRef.OrganizationID,
		CaseID:         caseRef.ID,
		Title:          title,
		UploadedBy:     principal.PrincipalID(),
	}
	version := &Version{
		FileName:   header.Filename,
		MimeType:   detectMime(header),
		StorageKey: key,
		FileSize:   size,
		UploadedBy: principal.PrincipalID(),
	}

	if err := h.store.CreateDocument(r.Context(), doc, version); err != nil {
		h.logger.WithError(err).Error("failed to create document")
		h.removeOrphan(key)
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, principal, caseRef.OrganizationID, doc.ID, audit.ActionUpload, nil, map[string]interface{}{
		"title":     doc.Title,
		"file_name": version.FileName,
		"mime_type": version.MimeType,
	})

	h.ocr.Trigger(doc.ID)

	httputil.WriteCreated(w, map[string]interface{}{
		"document": doc,
		"version":  version,
	})
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	ref := authz.DocumentFromRequest(r)

	doc, err := h.store.GetDocument(r.Context(), ref.ID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "document not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	version, err := h.store.GetCurrentVersion(r.Context(), ref.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"document":        doc,
		"current_version": version,
	})
}

func (h *Handlers) listVersions(w http.ResponseWriter, r *http.Request) {
	ref := authz.DocumentFromRequest(r)

	versions, err := h.store.ListVersions(r.Context(), ref.ID)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"versions": versions,
		"count":    len(versions),
	})
}

// addVersion handles POST /documents/{document_id}/versions. A new upload
// resets OCR to PENDING and re-triggers extraction.
func (h *Handlers) addVersion(w http.ResponseWriter, r *http.Request) {
	ref := authz.DocumentFromRequest(r)
	principal := middleware.GetPrincipal(r)

	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	key := storageKey(ref.OrganizationID, header.Filename)
	size, err := h.files.Save(key, file)
	if err != nil {
		h.logger.WithError(err).Error("failed to store uploaded file")
		httputil.WriteInternalError(w)
		return
	}

	version := &Version{
		FileName:   header.Filename,
		MimeType:   detectMime(header),
		StorageKey: key,
		FileSize:   size,
		UploadedBy: principal.PrincipalID(),
	}

	if err := h.store.AddVersion(r.Context(), ref.ID, version); err != nil {
		h.removeOrphan(key)
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "document not found")
			return
		}
		h.logger.WithError(err).Error("failed to add document version")
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, principal, ref.OrganizationID, ref.ID, audit.ActionUpdate, nil, map[string]interface{}{
		"version_number": version.VersionNumber,
		"file_name":      version.FileName,
	})

	h.ocr.Trigger(ref.ID)

	httputil.WriteCreated(w, version)
}

type restoreRequest struct {
	VersionNumber int `json:"version_number"`
}

func (h *Handlers) restore(w http.ResponseWriter, r *http.Request) {
	ref := authz.DocumentFromRequest(r)
	principal := middleware.GetPrincipal(r)

	var req restoreRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.VersionNumber < 1 {
		httputil.WriteBadRequest(w, "version_number must be positive")
		return
	}

	restored, err := h.store.RestoreVersion(r.Context(), ref.ID, req.VersionNumber, principal.PrincipalID())
	if errors.Is(err, ErrVersionNotFound) {
		httputil.WriteNotFound(w, "version not found")
		return
	}
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "document not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to restore document version")
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, principal, ref.OrganizationID, ref.ID, audit.ActionRestore, nil, map[string]interface{}{
		"restored_from":  req.VersionNumber,
		"version_number": restored.VersionNumber,
	})

	httputil.WriteCreated(w, restored)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	ref := authz.DocumentFromRequest(r)
	principal := middleware.GetPrincipal(r)

	doc, err := h.store.GetDocument(r.Context(), ref.ID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w, "document not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.DeleteDocument(r.Context(), ref.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFound(w, "document not found")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	h.recordEvent(r, principal, ref.OrganizationID, ref.ID, audit.ActionDelete, map[string]interface{}{
		"title":   doc.Title,
		"case_id": doc.CaseID,
	}, nil)

	httputil.WriteNoContent(w)
}

// search handles GET /documents/search?q=...; results are scoped to the
// caller's organization, so there is no cross-tenant leakage to filter.
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)

	orgUser, ok := principal.(auth.OrgUser)
	if !ok {
		httputil.WriteForbidden(w, "document search requires an organization account")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteBadRequest(w, "q is required")
		return
	}

	limit := httputil.ParseQueryInt(r, "limit", 50)
	hits, err := h.store.SearchText(r.Context(), orgUser.OrganizationID, query, limit)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"hits":  hits,
		"count": len(hits),
	})
}

func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, *multipartHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart upload")
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file field is required")
		return nil, nil, false
	}

	return file, &multipartHeader{Filename: header.Filename, ContentType: header.Header.Get("Content-Type")}, true
}

// removeOrphan deletes a stored file whose database row never committed
func (h *Handlers) removeOrphan(key string) {
	if err := h.files.Remove(key); err != nil {
		h.logger.WithError(err).WithField("storage_key", key).Warn("failed to remove orphaned upload")
	}
}

type multipartHeader struct {
	Filename    string
	ContentType string
}

func detectMime(header *multipartHeader) string {
	if header.ContentType != "" {
		return header.ContentType
	}
	return "application/octet-stream"
}

func storageKey(organizationID int64, filename string) string {
	return fmt.Sprintf("%d/%s%s", organizationID, uuid.New().String(), filepath.Ext(filename))
}

func (h *Handlers) recordEvent(r *http.Request, principal auth.Principal, organizationID, entityID int64, action audit.ActionType, oldValue, newValue map[string]interface{}) {
	h.recorder.RecordAsync(audit.Event{
		OrganizationID: organizationID,
		User: audit.UserSnapshot{
			ID:   principal.PrincipalID(),
			Name: principal.DisplayName(),
			Role: principalRole(principal),
		},
		ModuleName: "documents",
		EntityType: audit.EntityDocument,
		EntityID:   entityID,
		Action:     action,
		OldValue:   oldValue,
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
