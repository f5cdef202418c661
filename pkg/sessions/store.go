// Package sessions provides a Redis-backed session store keyed by opaque
// session IDs carried in per-kind cookies.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/caselane/caselane/pkg/auth"
)

// ErrNotFound is returned when a session id is unknown or expired
var ErrNotFound = errors.New("session not found")

// Session is the persisted state for one login
type Session struct {
	ID        string    `json:"id"`
	Kind      auth.Kind `json:"kind"`
	UserID    int64     `json:"user_id"`
	OrgID     int64     `json:"organization_id,omitempty"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal rebuilds the principal for this session
func (s *Session) Principal() auth.Principal {
	switch s.Kind {
	case auth.KindPlatformAdmin:
		return auth.PlatformAdmin{ID: s.UserID, Name: s.Name}
	case auth.KindLegacyUser:
		return auth.LegacyUser{ID: s.UserID, Name: s.Name, Role: s.Role}
	default:
		return auth.OrgUser{ID: s.UserID, OrganizationID: s.OrgID, Name: s.Name, Role: auth.Role(s.Role)}
	}
}

// Store persists sessions in Redis with a TTL
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store. TTL defaults to 12 hours.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Create persists a new session for the principal and returns it
func (s *Store) Create(ctx context.Context, p auth.Principal) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Kind:      p.PrincipalKind(),
		UserID:    p.PrincipalID(),
		Name:      p.DisplayName(),
		CreatedAt: time.Now().UTC(),
	}
	switch v := p.(type) {
	case auth.OrgUser:
		sess.OrgID = v.OrganizationID
		sess.Role = string(v.Role)
	case auth.LegacyUser:
		sess.Role = v.Role
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

// Get loads a session by id
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// Corrupt payload: drop it rather than serve it
		s.client.Del(ctx, sessionKey(id))
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Delete removes a session (logout)
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SetCookie attaches the session cookie for the session's principal kind
func SetCookie(w http.ResponseWriter, sess *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName(sess.Kind),
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie for the given kind
func ClearCookie(w http.ResponseWriter, kind auth.Kind) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName(kind),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
