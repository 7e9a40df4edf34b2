package chatsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/barchat/pkg/httpx"
)

// Error codes carried in the "error" field of every failed response.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeInsufficientScope    = "insufficient_scope"
	ErrorCodeServerError          = "server_error"
	ErrorCodeUsernameTaken        = "username_taken"
	ErrorCodeInvalidUsername      = "invalid_username"
	ErrorCodeWeakPassword         = "weak_password"
	ErrorCodeRoomNotFound         = "room_not_found"
	ErrorCodeNotMember            = "not_member"
	ErrorCodeInvalidRoomName      = "invalid_room_name"
	ErrorCodeRateLimited          = "rate_limit_exceeded"
)

// ErrReauthRequired means the server refused the credentials outright
// (close code 4001 or a rejected refresh token). Retrying will not help,
// the user has to log in again.
var ErrReauthRequired = errors.New("chatsdk: re-authentication required")

// APIError is the {error, error_description} body the chat server returns.
// The server writes it, the client parses it back.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on status and code, so a parsed response compares equal to the
// predefined error it was written from.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WriteError writes e as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, httpx.ErrorBody{Code: e.Code, Description: e.Description})
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidContentType = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}

	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	ErrUnsupportedGrantType = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrUsernameTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeUsernameTaken,
		Description: "username is already registered",
	}

	ErrInvalidUsername = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidUsername,
		Description: "username must be 3-32 characters of a-z, 0-9, '_', '.' or '-'",
	}

	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "password must be between 8 and 256 characters",
	}

	ErrRoomNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeRoomNotFound,
		Description: "room not found",
	}

	ErrNotMember = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeNotMember,
		Description: "not a member of this room",
	}

	ErrInvalidRoomName = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRoomName,
		Description: "room name must be 1-64 characters",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = resp.StatusCode
		return &e
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
