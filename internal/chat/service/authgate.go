package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
	"github.com/aussiebroadwan/barchat/pkg/cryptox"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

// HandshakeState tracks one admission attempt.
type HandshakeState uint8

const (
	StateReceived HandshakeState = iota
	StateValidating
	StateAccepted
	StateRejected
)

func (s HandshakeState) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateValidating:
		return "VALIDATING"
	case StateAccepted:
		return "ACCEPTED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// CredentialValidator is the durable check behind a cache miss.
// TokenService.ValidateAccessToken implements it.
type CredentialValidator interface {
	ValidateAccessToken(ctx context.Context, userID, token string) (jwtx.Claims, error)
}

// Admission is an accepted handshake.
type Admission struct {
	UserID    string
	SessionID string
	Guest     bool
	ExpiresAt time.Time

	// Cached is true when the token cache alone admitted the connection.
	Cached bool
}

// AuthGate decides whether a connection upgrade may proceed. It never
// touches the connection registry: the caller registers only after an
// admission, so a rejection can't leave anything half-registered.
type AuthGate struct {
	Cache     *tokencache.Cache
	Validator CredentialValidator
}

// Admit validates token for userID. Rejections are *AuthRejectedError;
// any other error is an infrastructure failure and the upgrade should fail
// with a server error.
func (g *AuthGate) Admit(ctx context.Context, userID, token string) (Admission, error) {
	l := slogx.FromContext(ctx).With(slog.String("user_id", userID))
	state := StateReceived

	adm, err := g.admit(ctx, userID, token, &state)
	if err != nil {
		var rej *AuthRejectedError
		if errors.As(err, &rej) {
			state = StateRejected
			l.Info("handshake rejected",
				slog.String("state", state.String()),
				slog.String("reason", string(rej.Reason)),
				slog.Any("error", rej.Err))
		}
		return Admission{}, err
	}

	state = StateAccepted
	l.Debug("handshake accepted", slog.String("state", state.String()), slog.Bool("cached", adm.Cached))
	return adm, nil
}

func (g *AuthGate) admit(ctx context.Context, userID, token string, state *HandshakeState) (Admission, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)

	*state = StateValidating
	if userID == "" || !jwtx.WellFormed(token) {
		return Admission{}, reject(ReasonMalformed, nil)
	}

	if rec, ok := g.Cache.Lookup(tokencache.KindAccess, userID); ok && cryptox.EqualTokens(rec.Token, token) {
		// The server wrote this exact token, so reading its claims without
		// verifying is safe.
		claims, err := jwtx.Peek(token)
		if err != nil {
			return Admission{}, reject(ReasonMalformed, err)
		}
		return Admission{
			UserID:    userID,
			SessionID: claims.SID,
			Guest:     claims.Guest,
			ExpiresAt: rec.ExpiresAt,
			Cached:    true,
		}, nil
	}

	claims, err := g.Validator.ValidateAccessToken(ctx, userID, token)
	if err != nil {
		return Admission{}, err
	}
	return Admission{
		UserID:    userID,
		SessionID: claims.SID,
		Guest:     claims.Guest,
		ExpiresAt: claims.Expiry(),
	}, nil
}
