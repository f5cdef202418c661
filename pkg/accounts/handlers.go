// Package accounts exposes the login, logout and account administration
// endpoints for the three principal kinds.
package accounts

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/middleware"
	"github.com/caselane/caselane/pkg/observability"
	"github.com/caselane/caselane/pkg/orgs"
	"github.com/caselane/caselane/pkg/sessions"
)

// Handlers carries the dependencies of the account endpoints
type Handlers struct {
	orgs     orgs.Service
	tokens   *auth.TokenManager
	sessions *sessions.Store
	lockout  *auth.LockoutPolicy
	recorder *audit.Recorder
	logger   *observability.Logger

	// SecureCookies marks session cookies Secure; set when serving TLS.
	SecureCookies bool
}

// NewHandlers creates the account handler set. lockout may be nil to
// disable platform-admin login throttling.
func NewHandlers(orgService orgs.Service, tokens *auth.TokenManager, sessionStore *sessions.Store, lockout *auth.LockoutPolicy, recorder *audit.Recorder, logger *observability.Logger) *Handlers {
	return &Handlers{
		orgs:     orgService,
		tokens:   tokens,
		sessions: sessionStore,
		lockout:  lockout,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterPublicRoutes registers the login endpoints. These must sit
// outside the auth middleware.
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.orgLogin).Methods(http.MethodPost)
	router.HandleFunc("/auth/platform/login", h.platformLogin).Methods(http.MethodPost)
	router.HandleFunc("/auth/legacy/login", h.legacyLogin).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
}

// RegisterRoutes registers the authenticated administration endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	platform := router.NewRoute().Subrouter()
	platform.Use(middleware.RequirePlatformAdmin)
	platform.HandleFunc("/organizations", h.createOrganization).Methods(http.MethodPost)

	orgAdmin := router.NewRoute().Subrouter()
	orgAdmin.Use(middleware.RequireOrgAdmin)
	orgAdmin.HandleFunc("/employees", h.createEmployee).Methods(http.MethodPost)
	orgAdmin.HandleFunc("/employees", h.listEmployees).Methods(http.MethodGet)

	router.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
}

type orgLoginRequest struct {
	Organization string `json:"organization"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	Principal auth.Principal `json:"principal"`
}

func (h *Handlers) orgLogin(w http.ResponseWriter, r *http.Request) {
	var req orgLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Organization == "" || req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "organization, email and password are required")
		return
	}

	org, err := h.orgs.GetOrganizationBySlug(r.Context(), req.Organization)
	if err != nil {
		h.rejectLogin(w, err)
		return
	}
	if org.Status != orgs.OrgStatusActive {
		httputil.WriteForbidden(w, "organization is suspended")
		return
	}

	employee, err := h.orgs.GetEmployeeByEmail(r.Context(), org.ID, strings.ToLower(req.Email))
	if err != nil {
		h.rejectLogin(w, err)
		return
	}
	if err := auth.VerifyPassword(employee.PasswordHash, req.Password); err != nil {
		h.rejectLogin(w, err)
		return
	}

	h.finishLogin(w, r, employee.Principal(), org.ID)
}

type platformLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) platformLogin(w http.ResponseWriter, r *http.Request) {
	var req platformLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	admin, err := h.orgs.GetPlatformAdminByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		h.rejectLogin(w, err)
		return
	}

	if h.lockout != nil {
		locked, err := h.lockout.IsLocked(r.Context(), admin.ID)
		if err != nil {
			h.logger.WithError(err).Error("lockout check failed")
			httputil.WriteInternalError(w)
			return
		}
		if locked {
			httputil.WriteForbidden(w, "account temporarily locked")
			return
		}
	}

	if err := auth.VerifyPassword(admin.PasswordHash, req.Password); err != nil {
		if h.lockout != nil {
			if _, lockErr := h.lockout.RecordFailure(r.Context(), admin.ID); lockErr != nil {
				h.logger.WithError(lockErr).Error("failed to record login failure")
			}
		}
		h.rejectLogin(w, err)
		return
	}

	if h.lockout != nil {
		if err := h.lockout.Reset(r.Context(), admin.ID); err != nil {
			h.logger.WithError(err).Error("failed to reset login failures")
		}
	}

	h.finishLogin(w, r, auth.PlatformAdmin{ID: admin.ID, Name: admin.Name}, 0)
}

type legacyLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) legacyLogin(w http.ResponseWriter, r *http.Request) {
	var req legacyLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.orgs.GetLegacyUserByUsername(r.Context(), req.Username)
	if err != nil {
		h.rejectLogin(w, err)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.rejectLogin(w, err)
		return
	}

	h.finishLogin(w, r, auth.LegacyUser{ID: user.ID, Name: user.Name, Role: user.Role}, 0)
}

// rejectLogin answers every failed login the same way so responses do not
// reveal whether the account exists.
func (h *Handlers) rejectLogin(w http.ResponseWriter, err error) {
	if !errors.Is(err, orgs.ErrNotFound) && !errors.Is(err, auth.ErrBadCredentials) {
		h.logger.WithError(err).Error("login lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteUnauthorized(w, "invalid credentials")
}

func (h *Handlers) finishLogin(w http.ResponseWriter, r *http.Request, p auth.Principal, orgID int64) {
	token, err := h.tokens.Issue(p)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	sess, err := h.sessions.Create(r.Context(), p)
	if err != nil {
		h.logger.WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w)
		return
	}
	sessions.SetCookie(w, sess, h.SecureCookies)

	h.recorder.RecordAsync(audit.Event{
		OrganizationID: orgID,
		User:           snapshot(p),
		ModuleName:     "auth",
		EntityType:     audit.EntitySession,
		EntityID:       p.PrincipalID(),
		Action:         audit.ActionLogin,
		IPAddress:      httputil.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})

	httputil.WriteSuccess(w, loginResponse{Token: token, Principal: p})
}

// logout clears whichever session cookies the request carries. Safe to call
// unauthenticated; an absent session is not an error.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	for _, kind := range []auth.Kind{auth.KindPlatformAdmin, auth.KindOrgUser, auth.KindLegacyUser} {
		cookie, err := r.Cookie(auth.CookieName(kind))
		if err != nil {
			continue
		}

		sess, err := h.sessions.Get(r.Context(), cookie.Value)
		if err == nil {
			if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
				h.logger.WithError(err).Error("failed to delete session")
			}
			p := sess.Principal()
			h.recorder.RecordAsync(audit.Event{
				OrganizationID: sess.OrgID,
				User:           snapshot(p),
				ModuleName:     "auth",
				EntityType:     audit.EntitySession,
				EntityID:       p.PrincipalID(),
				Action:         audit.ActionLogout,
				IPAddress:      httputil.ClientIP(r),
				UserAgent:      r.UserAgent(),
			})
		}
		sessions.ClearCookie(w, kind)
	}
	httputil.WriteNoContent(w)
}

// me reports the authenticated principal
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	if p == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"kind":      p.PrincipalKind(),
		"id":        p.PrincipalID(),
		"name":      p.DisplayName(),
		"principal": p,
	})
}

type createOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *Handlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	org := &orgs.Organization{Name: req.Name, Slug: req.Slug}
	if err := h.orgs.CreateOrganization(r.Context(), org); err != nil {
		h.logger.WithError(err).Error("failed to create organization")
		httputil.WriteInternalError(w)
		return
	}

	p := middleware.GetPrincipal(r)
	h.recorder.RecordAsync(audit.Event{
		OrganizationID: org.ID,
		User:           snapshot(p),
		ModuleName:     "organizations",
		EntityType:     audit.EntityOrganization,
		EntityID:       org.ID,
		Action:         audit.ActionCreate,
		NewValue:       map[string]interface{}{"name": org.Name, "slug": org.Slug},
		IPAddress:      httputil.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})

	httputil.WriteCreated(w, org)
}

type createEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handlers) createEmployee(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	actor, ok := p.(auth.OrgUser)
	if !ok {
		// Platform admins administer organizations, not their staff.
		httputil.WriteForbidden(w, "organization administrator required")
		return
	}

	var req createEmployeeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "name, email and password are required")
		return
	}
	role := auth.Role(req.Role)
	if role != "" && role != auth.RoleOrgAdmin && role != auth.RoleEmployee {
		httputil.WriteBadRequest(w, "unknown role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	employee := &orgs.Employee{
		OrganizationID: actor.OrganizationID,
		Name:           req.Name,
		Email:          strings.ToLower(req.Email),
		PasswordHash:   hash,
		Role:           role,
	}
	if err := h.orgs.CreateEmployee(r.Context(), employee); err != nil {
		h.logger.WithError(err).Error("failed to create employee")
		httputil.WriteInternalError(w)
		return
	}

	h.recorder.RecordAsync(audit.Event{
		OrganizationID: actor.OrganizationID,
		User:           snapshot(p),
		ModuleName:     "organizations",
		EntityType:     audit.EntityEmployee,
		EntityID:       employee.ID,
		Action:         audit.ActionCreate,
		NewValue:       map[string]interface{}{"name": employee.Name, "email": employee.Email, "role": string(employee.Role)},
		IPAddress:      httputil.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})

	httputil.WriteCreated(w, employee)
}

func (h *Handlers) listEmployees(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetPrincipal(r).(auth.OrgUser)
	if !ok {
		httputil.WriteForbidden(w, "organization administrator required")
		return
	}

	employees, err := h.orgs.ListEmployees(r.Context(), actor.OrganizationID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list employees")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, employees)
}

// snapshot freezes the acting principal for the audit trail
func snapshot(p auth.Principal) audit.UserSnapshot {
	s := audit.UserSnapshot{ID: p.PrincipalID(), Name: p.DisplayName()}
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
