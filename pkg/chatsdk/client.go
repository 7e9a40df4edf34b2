package chatsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the BarChat service. It covers the
// unauthenticated endpoints and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the server at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login authenticates a registered user with the password grant.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*Session, error) {
	tokenResp, err := c.PasswordGrant(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokenResp), nil
}

// LoginAsGuest starts a guest session. Guests can chat but never create
// rooms, and the session ends for good when its refresh token expires.
func (c *SDKClient) LoginAsGuest(ctx context.Context, preferredName string) (*Session, error) {
	tokenResp, err := c.GuestGrant(ctx, preferredName)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokenResp), nil
}

// AuthenticateWithRefreshToken resumes a session saved from an earlier run.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, userID, refreshToken string) (*Session, error) {
	tokenResp, err := c.RefreshGrant(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if tokenResp.RefreshToken == "" {
		tokenResp.RefreshToken = refreshToken
	}
	return newSession(c, tokenResp), nil
}

// NewSessionFromTokens creates a session from tokens the caller already
// holds. It still refreshes on its own once the access token is due.
func (c *SDKClient) NewSessionFromTokens(userID, accessToken, refreshToken, scope string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		Scope:        scope,
		UserID:       userID,
	})
}
