package chatsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a session refreshes.
const refreshBuffer = 30 * time.Second

// Session is an authenticated user. Every call refreshes the access token
// when it is due, so callers never handle expiry themselves.
type Session struct {
	client *SDKClient

	userID string
	guest  bool

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	scopes       map[string]bool
}

func newSession(client *SDKClient, tokenResp *TokenResponse) *Session {
	s := &Session{
		client: client,
		userID: tokenResp.UserID,
		guest:  tokenResp.Guest,
	}
	s.apply(tokenResp)
	return s
}

// apply stores a token response. Callers hold mu, or own s exclusively.
func (s *Session) apply(tokenResp *TokenResponse) {
	s.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		s.refreshToken = tokenResp.RefreshToken
	}
	s.expiresAt = refreshDeadline(time.Now(), tokenResp.ExpiresIn)
	s.scopes = parseScopes(tokenResp.Scope)
}

// refreshDeadline is when a token lasting expiresIn seconds should be
// replaced. Short lived tokens refresh at half their lifetime instead.
func refreshDeadline(now time.Time, expiresIn int) time.Time {
	ttl := time.Duration(expiresIn) * time.Second
	buffer := refreshBuffer
	if ttl < 2*buffer {
		buffer = ttl / 2
	}
	return now.Add(ttl - buffer)
}

// parseScopes parses a space-delimited scope string into a map for fast lookup.
func parseScopes(scopeStr string) map[string]bool {
	parts := strings.Fields(scopeStr)
	scopes := make(map[string]bool, len(parts))
	for _, scope := range parts {
		scopes[scope] = true
	}
	return scopes
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// forceRefresh replaces the access token even if it looks valid locally.
// The stream calls it when the server says the token has expired.
func (s *Session) forceRefresh(ctx context.Context, stale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != stale {
		return nil
	}
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return fmt.Errorf("%w: access token expired and no refresh token available", ErrReauthRequired)
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.userID, s.refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			return fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.apply(tokenResp)
	return nil
}

// Logout ends this session on the server. With all set every session of
// the user ends. Sockets of the ended sessions are closed with 4001.
func (s *Session) Logout(ctx context.Context, all bool) error {
	s.mu.RLock()
	refreshToken := s.refreshToken
	s.mu.RUnlock()

	data := url.Values{"refresh_token": {refreshToken}}
	if all {
		data.Set("all", strconv.FormatBool(all))
	}

	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.postForm(ctx, "/v1/auth/logout", data, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return err
	}
	if err := checkStatusNoContent(resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.refreshToken = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) Guest() bool { return s.guest }

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, for saving the session.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// HasScope returns true if the session has the specified scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}

// GetState pulls every room of the user with unread counts and online
// members. Call it after each (re)connect.
func (s *Session) GetState(ctx context.Context) (*InitialState, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/state", nil, nil)
	if err != nil {
		return nil, err
	}

	var state InitialState
	if err := decodeJSON(resp, &state, http.StatusOK); err != nil {
		return nil, err
	}
	return &state, nil
}
