package chatsdk

import (
	"context"
	"net/http"
	"net/url"
)

// PasswordGrant exchanges a username and password for a token pair.
func (c *SDKClient) PasswordGrant(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/token", url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	})
}

// RefreshGrant requests a new access token. The refresh token itself does
// not change, so the response may leave RefreshToken empty.
func (c *SDKClient) RefreshGrant(ctx context.Context, userID, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, "/v1/auth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"user_id":       {userID},
	})
}

// GuestGrant creates a guest identity and returns its token pair.
func (c *SDKClient) GuestGrant(ctx context.Context, preferredName string) (*TokenResponse, error) {
	data := url.Values{}
	if preferredName != "" {
		data.Set("preferred_name", preferredName)
	}
	return c.requestToken(ctx, "/v1/auth/guest", data)
}

// Register creates a registered account. It does not log in.
func (c *SDKClient) Register(ctx context.Context, username, password, preferredName string) (*RegisterResponse, error) {
	data := url.Values{
		"username": {username},
		"password": {password},
	}
	if preferredName != "" {
		data.Set("preferred_name", preferredName)
	}

	resp, err := c.postForm(ctx, "/v1/auth/register", data, nil)
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) requestToken(ctx context.Context, path string, data url.Values) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, path, data, nil)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}
