// Package middleware provides the HTTP middleware chain shared by all
// routes: principal resolution, request IDs and organization context.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/contextkeys"
	"github.com/caselane/caselane/pkg/httputil"
	"github.com/caselane/caselane/pkg/sessions"
)

// AuthMiddleware resolves the request's principal from a bearer token or a
// session cookie. Each principal kind keeps its own verification path.
type AuthMiddleware struct {
	tokens   *auth.TokenManager
	sessions *sessions.Store
	optional bool
}

// NewAuthMiddleware creates authentication middleware. sessions may be nil
// when cookie sessions are disabled. If optional is true, unauthenticated
// requests pass through with no principal.
func NewAuthMiddleware(tokens *auth.TokenManager, sessionStore *sessions.Store, optional bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessionStore, optional: optional}
}

// Handler wraps an HTTP handler with principal resolution
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.resolve(r)
		if err != nil || principal == nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing or invalid credentials")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) resolve(r *http.Request) (auth.Principal, error) {
	// Bearer token takes precedence over cookies.
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, auth.ErrUnauthenticated
		}
		return m.tokens.Verify(parts[1])
	}

	if m.sessions == nil {
		return nil, auth.ErrUnauthenticated
	}

	// Try the session cookie for each principal kind in turn.
	for _, kind := range []auth.Kind{auth.KindPlatformAdmin, auth.KindOrgUser, auth.KindLegacyUser} {
		cookie, err := r.Cookie(auth.CookieName(kind))
		if err != nil {
			continue
		}
		sess, err := m.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			continue
		}
		return sess.Principal(), nil
	}
	return nil, auth.ErrUnauthenticated
}

// GetPrincipal extracts the authenticated principal from the request
func GetPrincipal(r *http.Request) auth.Principal {
	p, _ := r.Context().Value(contextkeys.PrincipalKey).(auth.Principal)
	return p
}

// RequirePlatformAdmin gates a route to platform super-admins
func RequirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		if p == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if _, ok := p.(auth.PlatformAdmin); !ok {
			httputil.WriteForbidden(w, "platform administrator required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOrgAdmin gates a route to organization admins (platform admins
// pass as well)
func RequireOrgAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		if p == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		switch v := p.(type) {
		case auth.PlatformAdmin:
			next.ServeHTTP(w, r)
		case auth.OrgUser:
			if !v.IsAdmin() {
				httputil.WriteForbidden(w, "organization administrator required")
				return
			}
			next.ServeHTTP(w, r)
		default:
			httputil.WriteForbidden(w, "organization administrator required")
		}
	})
}

// WithPrincipal returns a context carrying the given principal; exported
// for tests and internal dispatch.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}
