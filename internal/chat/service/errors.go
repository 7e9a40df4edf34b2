package service

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrWeakPassword       = errors.New("weak_password")

	// ErrRefreshFailed means the refresh credential is gone for good and the
	// client has to log in again. Transient failures are not wrapped in it.
	ErrRefreshFailed  = errors.New("refresh_failed")
	ErrInvalidRefresh = fmt.Errorf("invalid_refresh_token: %w", ErrRefreshFailed)
)

// RejectReason is why AuthGate turned a handshake away.
type RejectReason string

const (
	ReasonMalformed RejectReason = "MALFORMED"
	ReasonInvalid   RejectReason = "INVALID"
	ReasonExpired   RejectReason = "EXPIRED"
)

// AuthRejectedError is returned by AuthGate.Admit. EXPIRED tells the client
// to refresh and retry, anything else to log in again.
type AuthRejectedError struct {
	Reason RejectReason
	Err    error
}

func (e *AuthRejectedError) Error() string {
	if e.Err == nil {
		return "auth rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("auth rejected: %s: %v", e.Reason, e.Err)
}

func (e *AuthRejectedError) Unwrap() error { return e.Err }

// CloseCode is the WebSocket close code the rejection maps to.
func (e *AuthRejectedError) CloseCode() int {
	if e.Reason == ReasonExpired {
		return domain.CloseTokenExpired
	}
	return domain.CloseInvalidToken
}

func reject(reason RejectReason, err error) error {
	return &AuthRejectedError{Reason: reason, Err: err}
}
