package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

// TokenHandler serves POST /v1/auth/token.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Token Endpoint
//	@Description	Issues an access token. grant_type=password logs in and starts a new session, grant_type=refresh_token mints a fresh access token for an existing session.
//	@Description	Refresh tokens are not rotated: the same refresh token comes back on every refresh.
//	@Tags			Auth
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(password, refresh_token)
//	@Param			username		formData	string					false	"Username (password grant)"
//	@Param			password		formData	string					false	"Password (password grant)"
//	@Param			refresh_token	formData	string					false	"Refresh token (refresh_token grant)"
//	@Param			user_id			formData	string					false	"User ID (refresh_token grant)"
//	@Success		200				{object}	chatsdk.TokenResponse	"access_token, refresh_token, token_type, expires_in, user_id"
//	@Failure		400				{object}	chatsdk.APIError		"error, error_description"
//	@Failure		401				{object}	chatsdk.APIError		"error, error_description"
//	@Failure		500				{object}	chatsdk.APIError		"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Router			/v1/auth/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r)
	if !ok {
		return
	}

	switch form.Get("grant_type") {
	case "password":
		h.handlePasswordGrant(w, r, form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, form)
	default:
		chatsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handlePasswordGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()

	username := strings.TrimSpace(form.Get("username"))
	password := form.Get("password")
	if username == "" || password == "" {
		chatsdk.ErrInvalidRequest.WithDescription("username and password are required").WriteError(w)
		return
	}

	pair, err := h.TokenService.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			chatsdk.ErrInvalidGrant.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("password grant failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
		return
	}

	writeTokenResponse(w, http.StatusOK, pair)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()

	refresh := strings.TrimSpace(form.Get("refresh_token"))
	userID := strings.TrimSpace(form.Get("user_id"))
	if refresh == "" || userID == "" {
		chatsdk.ErrInvalidRequest.WithDescription("refresh_token and user_id are required").WriteError(w)
		return
	}

	pair, err := h.TokenService.Refresh(ctx, userID, refresh)
	if err != nil {
		if errors.Is(err, service.ErrRefreshFailed) {
			chatsdk.ErrInvalidGrant.WithDescription("refresh token is invalid, expired or revoked").WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("refresh grant failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
		return
	}

	writeTokenResponse(w, http.StatusOK, pair)
}

// GuestHandler serves POST /v1/auth/guest.
type GuestHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Guest Login
//	@Description	Creates a throwaway guest identity. The guest refresh token lives in memory only and dies with a server restart or logout.
//	@Tags			Auth
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			preferred_name	formData	string					false	"Display name"
//	@Success		200				{object}	chatsdk.TokenResponse	"access_token, refresh_token, user_id, guest"
//	@Failure		400				{object}	chatsdk.APIError		"error, error_description"
//	@Failure		500				{object}	chatsdk.APIError		"error, error_description"
//	@Router			/v1/auth/guest [post].
func (h *GuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	form, ok := parseForm(w, r)
	if !ok {
		return
	}

	pair, err := h.TokenService.IssueGuest(r.Context(), form.Get("preferred_name"))
	if err != nil {
		slogx.FromContext(r.Context()).Error("guest issue failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
		return
	}

	writeTokenResponse(w, http.StatusOK, pair)
}

// RegisterHandler serves POST /v1/auth/register.
type RegisterHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Register Account
//	@Description	Creates a registered account. Log in with the password grant afterwards.
//	@Tags			Auth
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			username		formData	string						true	"Username, 3-32 of a-z 0-9 _ . -"
//	@Param			password		formData	string						true	"Password, 8-256 characters"
//	@Param			preferred_name	formData	string						false	"Display name"
//	@Success		201				{object}	chatsdk.RegisterResponse	"user_id, username"
//	@Failure		400				{object}	chatsdk.APIError			"error, error_description"
//	@Failure		409				{object}	chatsdk.APIError			"error, error_description"
//	@Failure		500				{object}	chatsdk.APIError			"error, error_description"
//	@Router			/v1/auth/register [post].
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, ok := parseForm(w, r)
	if !ok {
		return
	}

	user, err := h.TokenService.Register(ctx, form.Get("username"), form.Get("password"), form.Get("preferred_name"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			chatsdk.ErrUsernameTaken.WriteError(w)
		case errors.Is(err, service.ErrInvalidUsername):
			chatsdk.ErrInvalidUsername.WriteError(w)
		case errors.Is(err, service.ErrWeakPassword):
			chatsdk.ErrWeakPassword.WriteError(w)
		default:
			slogx.FromContext(ctx).Error("register failed", "err", err)
			chatsdk.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, chatsdk.RegisterResponse{
		UserID:        user.ID,
		Username:      user.Username,
		PreferredName: user.PreferredName,
	})
}

// LogoutHandler serves POST /v1/auth/logout.
type LogoutHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Logout
//	@Description	Revokes the calling session, the session of refresh_token, or every session with all=true. Live sockets of the revoked sessions are closed with 4001.
//	@Description	Guests always lose their whole identity.
//	@Tags			Auth
//	@Accept			application/x-www-form-urlencoded
//	@Security		BearerAuth
//	@Param			refresh_token	formData	string	false	"Refresh token of the session to end"
//	@Param			all				formData	bool	false	"End every session of the caller"
//	@Success		204
//	@Failure		400	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		401	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		500	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := httpx.ClaimsFrom(ctx)
	if !ok {
		chatsdk.ErrInvalidToken.WriteError(w)
		return
	}

	form, ok := parseForm(w, r)
	if !ok {
		return
	}

	all := false
	if v := form.Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			chatsdk.ErrInvalidRequest.WithDescription("all must be a boolean").WriteError(w)
			return
		}
		all = b
	}

	if err := h.TokenService.Logout(ctx, claims, form.Get("refresh_token"), all); err != nil {
		if errors.Is(err, service.ErrRefreshFailed) {
			chatsdk.ErrInvalidGrant.WithDescription("unknown session").WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("logout failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// parseForm accepts an empty or form-encoded body and writes the error
// itself when it returns false.
func parseForm(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		chatsdk.ErrInvalidContentType.WriteError(w)
		return nil, false
	}
	if err := r.ParseForm(); err != nil {
		chatsdk.ErrInvalidRequest.WithDescription("invalid form body").WriteError(w)
		return nil, false
	}
	return r.Form, true
}

func writeTokenResponse(w http.ResponseWriter, status int, pair *domain.TokenPair) {
	httpx.WriteJSON(w, status, chatsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn),
		Scope:        pair.Scope,
		UserID:       pair.UserID,
		Guest:        pair.Guest,
	})
}
