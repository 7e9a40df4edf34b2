package domain

import "time"

// TokenPair is what the token endpoints hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"` // "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // seconds until the access token expires
	Scope        string `json:"scope,omitempty"`
	UserID       string `json:"user_id"`
	Guest        bool   `json:"guest,omitempty"`
}

// RefreshToken is the durable refresh credential of a registered user.
// Guests never get one of these, their refresh token lives in the cache.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque token
	SessionID string // carried as "sid" on every access token of the session
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the session can still mint access tokens.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
