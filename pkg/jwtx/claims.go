package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the handshake token lifetime. The token cache uses
// the same window so cache expiry and signature expiry agree.
const DefaultAccessTokenTTL = 5 * time.Minute

// Chat scopes carried on access tokens.
const (
	ScopeChat        = "chat"         // connect, send, read state
	ScopeRoomsManage = "rooms:manage" // create rooms (registered accounts only)
)

// Claims are access-token claims shared by the chat server and its clients.
type Claims struct {
	jwt.RegisteredClaims

	// Session the token was minted under. Revoking the session kills the token
	// on the next slow-path check even before exp.
	SID string `json:"sid,omitempty"`

	Scopes []string `json:"scopes,omitempty"`

	// Guest marks cache-only accounts whose refresh token is never persisted.
	Guest bool `json:"guest,omitempty"`

	Username      string `json:"username,omitempty"`
	PreferredName string `json:"preferred_name,omitempty"`
}

// AccessParams groups what the token service knows when minting.
type AccessParams struct {
	Subject       string
	SessionID     string
	Scopes        []string
	Guest         bool
	Username      string
	PreferredName string
	Issuer        string
	TTL           time.Duration
	Now           time.Time
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(p AccessParams) Claims {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := p.Now.UTC()

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:           p.SessionID,
		Scopes:        p.Scopes,
		Guest:         p.Guest,
		Username:      p.Username,
		PreferredName: p.PreferredName,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Expiry returns exp, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
