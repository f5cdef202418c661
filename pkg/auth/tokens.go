package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer names bound into each token; verification requires an exact match
// so tokens cannot cross verification paths even if secrets were shared.
const (
	issuerPlatform = "caselane/platform"
	issuerOrg      = "caselane/org"
	issuerLegacy   = "caselane/legacy"
)

// Session cookie names per principal kind
const (
	CookiePlatformAdmin = "caselane_admin_session"
	CookieOrgUser       = "caselane_session"
	CookieLegacyUser    = "caselane_legacy_session"
)

// TokenConfig holds the signing material for the three verification paths
type TokenConfig struct {
	PlatformSecret []byte
	OrgSecret      []byte
	LegacySecret   []byte
	TTL            time.Duration
}

// claims is the JWT payload for all principal kinds; unused fields stay
// empty for kinds that do not carry them.
type claims struct {
	jwt.RegisteredClaims
	Kind           Kind   `json:"kind"`
	Name           string `json:"name"`
	OrganizationID int64  `json:"organization_id,omitempty"`
	Role           string `json:"role,omitempty"`
}

// TokenManager issues and verifies signed session tokens
type TokenManager struct {
	config TokenConfig
}

// NewTokenManager creates a token manager. TTL defaults to 12 hours.
func NewTokenManager(config TokenConfig) *TokenManager {
	if config.TTL == 0 {
		config.TTL = 12 * time.Hour
	}
	return &TokenManager{config: config}
}

// Issue signs a token for the principal using its kind's secret and issuer
func (tm *TokenManager) Issue(p Principal) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", p.PrincipalID()),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.config.TTL)),
		},
		Kind: p.PrincipalKind(),
		Name: p.DisplayName(),
	}

	var secret []byte
	switch v := p.(type) {
	case PlatformAdmin:
		c.Issuer = issuerPlatform
		secret = tm.config.PlatformSecret
	case OrgUser:
		c.Issuer = issuerOrg
		c.OrganizationID = v.OrganizationID
		c.Role = string(v.Role)
		secret = tm.config.OrgSecret
	case LegacyUser:
		c.Issuer = issuerLegacy
		c.Role = v.Role
		secret = tm.config.LegacySecret
	default:
		return "", fmt.Errorf("unknown principal kind %T", p)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token against the verification path for its declared
// kind and reconstructs the principal. The kind is read from the unverified
// payload only to select the secret; the signature and issuer are then
// checked against that path.
func (tm *TokenManager) Verify(tokenString string) (Principal, error) {
	unverified := &claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, unverified); err != nil {
		return nil, fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	}

	switch unverified.Kind {
	case KindPlatformAdmin:
		return tm.verify(tokenString, tm.config.PlatformSecret, issuerPlatform)
	case KindOrgUser:
		return tm.verify(tokenString, tm.config.OrgSecret, issuerOrg)
	case KindLegacyUser:
		return tm.verify(tokenString, tm.config.LegacySecret, issuerLegacy)
	default:
		return nil, fmt.Errorf("%w: unknown principal kind", ErrUnauthenticated)
	}
}

func (tm *TokenManager) verify(tokenString string, secret []byte, issuer string) (Principal, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}

	var id int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}

	switch c.Kind {
	case KindPlatformAdmin:
		return PlatformAdmin{ID: id, Name: c.Name}, nil
	case KindOrgUser:
		if c.OrganizationID == 0 {
			return nil, fmt.Errorf("%w: org token without organization", ErrUnauthenticated)
		}
		return OrgUser{ID: id, OrganizationID: c.OrganizationID, Name: c.Name, Role: Role(c.Role)}, nil
	case KindLegacyUser:
		return LegacyUser{ID: id, Name: c.Name, Role: c.Role}, nil
	default:
		return nil, fmt.Errorf("%w: unknown principal kind", ErrUnauthenticated)
	}
}

// CookieName returns the session cookie name for a principal kind
func CookieName(kind Kind) string {
	switch kind {
	case KindPlatformAdmin:
		return CookiePlatformAdmin
	case KindLegacyUser:
		return CookieLegacyUser
	default:
		return CookieOrgUser
	}
}
