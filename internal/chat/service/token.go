package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
	"github.com/aussiebroadwan/barchat/pkg/cryptox"
	"github.com/aussiebroadwan/barchat/pkg/idx"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

const (
	DefaultRefreshTTL = 30 * 24 * time.Hour

	minPasswordLen = 8
	maxPasswordLen = 256
	guestPrefix    = "guest-"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,31}$`)

// Disconnector closes live sockets. An empty sessionID means every session
// of the user.
type Disconnector interface {
	DisconnectSession(userID, sessionID string, code int, reason string) int
}

// TokenService issues, refreshes and revokes credentials.
//
// Access tokens are written to Cache on every issue so the handshake fast
// path finds them. Registered users keep their refresh token in the store,
// guests only in Cache.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Cache      *tokencache.Cache
	Hasher     *cryptox.Hasher
	Issuer     string

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	GuestRefreshTTL time.Duration

	// Connections gets told about revoked sessions. Optional.
	Connections Disconnector

	// Now defaults to time.Now.
	Now func() time.Time

	flight singleflight.Group
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return tokencache.DefaultAccessTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}

func (s *TokenService) guestRefreshTTL() time.Duration {
	if s.GuestRefreshTTL > 0 {
		return s.GuestRefreshTTL
	}
	return tokencache.DefaultGuestRefreshTTL
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Register creates a registered account. It does not sign the user in.
func (s *TokenService) Register(ctx context.Context, username, password, preferredName string) (domain.User, error) {
	username = normalizeUsername(username)
	if !usernamePattern.MatchString(username) || strings.HasPrefix(username, guestPrefix) {
		return domain.User{}, ErrInvalidUsername
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return domain.User{}, ErrWeakPassword
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:            idx.New().String(),
		Username:      username,
		PreferredName: strings.TrimSpace(preferredName),
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user.PreferredName == "" {
		user.PreferredName = username
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login implements the password grant. Every login opens a new session with
// its own durable refresh token.
func (s *TokenService) Login(ctx context.Context, username, password string) (*domain.TokenPair, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Guest || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Warn("stored password hash unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, ErrInvalidCredentials
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	sessionID := idx.New().String()
	access, _, err := s.signAccess(user, sessionID, now)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		SessionID: sessionID,
		ExpiresAt: now.Add(s.refreshTTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	s.Cache.Put(tokencache.KindAccess, user.ID, access, s.accessTTL())
	l.Info("user logged in", slog.String("user_id", user.ID), slog.String("sid", sessionID))

	return s.pair(user, access, refreshOpaque), nil
}

// IssueGuest creates a throwaway account. Its refresh token only lives in
// the cache, so it is gone after the guest TTL or a restart.
func (s *TokenService) IssueGuest(ctx context.Context, preferredName string) (*domain.TokenPair, error) {
	now := s.now()

	user := domain.User{
		ID:            idx.New().String(),
		Username:      guestPrefix + uuid.NewString(),
		PreferredName: strings.TrimSpace(preferredName),
		Guest:         true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user.PreferredName == "" {
		user.PreferredName = "Guest"
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	// A guest has exactly one session, keyed by the account itself.
	access, _, err := s.signAccess(user, user.ID, now)
	if err != nil {
		return nil, err
	}

	s.Cache.Put(tokencache.KindGuestRefresh, user.ID, refreshOpaque, s.guestRefreshTTL())
	s.Cache.Put(tokencache.KindAccess, user.ID, access, s.accessTTL())

	slogx.FromContext(ctx).Info("guest issued", slog.String("user_id", user.ID))
	return s.pair(user, access, refreshOpaque), nil
}

// Refresh exchanges a refresh token for a new access token. userID is
// required for guests and optional for registered users.
//
// Concurrent calls presenting the same user and refresh token share one
// exchange and all get the same access token back. The refresh token is not
// rotated, so no caller's copy is invalidated while another refreshes.
func (s *TokenService) Refresh(ctx context.Context, userID, refreshToken string) (*domain.TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefresh
	}

	fp := cryptox.FingerprintToken(refreshToken)
	key := userID + ":" + fp

	// Shared callers must not be failed by the first caller going away.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.refresh(flightCtx, userID, refreshToken, fp)
	})
	if err != nil {
		return nil, err
	}

	pair := *v.(*domain.TokenPair)
	if shared {
		slogx.FromContext(ctx).Debug("refresh shared", slog.String("user_id", pair.UserID))
	}
	return &pair, nil
}

func (s *TokenService) refresh(ctx context.Context, userID, refreshToken, fp string) (*domain.TokenPair, error) {
	now := s.now()

	if userID != "" {
		if rec, ok := s.Cache.Lookup(tokencache.KindGuestRefresh, userID); ok && cryptox.EqualTokens(rec.Token, refreshToken) {
			user, err := s.Store.Users().GetUserByID(ctx, userID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, ErrInvalidRefresh
				}
				return nil, err
			}
			return s.reissue(user, user.ID, refreshToken, now)
		}
	}

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	if !rt.Active(now) {
		return nil, ErrInvalidRefresh
	}
	if userID != "" && rt.UserID != userID {
		return nil, ErrInvalidRefresh
	}

	user, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}
	return s.reissue(user, rt.SessionID, refreshToken, now)
}

func (s *TokenService) reissue(user domain.User, sessionID, refreshToken string, now time.Time) (*domain.TokenPair, error) {
	access, _, err := s.signAccess(user, sessionID, now)
	if err != nil {
		return nil, err
	}
	s.Cache.Put(tokencache.KindAccess, user.ID, access, s.accessTTL())
	return s.pair(user, access, refreshToken), nil
}

// Logout revokes credentials and closes the sockets that used them. Guests
// lose their whole identity. Registered users lose the session named by
// refreshToken, or the session of the calling token when refreshToken is
// empty, or every session when all is set.
func (s *TokenService) Logout(ctx context.Context, claims jwtx.Claims, refreshToken string, all bool) error {
	userID := claims.Subject
	l := slogx.FromContext(ctx).With(slog.String("user_id", userID))

	if claims.Guest {
		s.Cache.InvalidateSubject(userID)
		s.disconnect(userID, "")
		l.Info("guest logged out")
		return nil
	}

	var sessionID string
	switch {
	case all:
		n, err := s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
		if err != nil {
			return err
		}
		l.Info("all sessions revoked", slog.Int64("count", n))

	case strings.TrimSpace(refreshToken) != "":
		fp := cryptox.FingerprintToken(strings.TrimSpace(refreshToken))
		rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if rt.UserID != userID {
			return ErrInvalidRefresh
		}
		if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}
		sessionID = rt.SessionID

	default:
		rt, err := s.Store.RefreshTokens().GetSession(ctx, userID, claims.SID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, rt.TokenHash); err != nil {
			return err
		}
		sessionID = rt.SessionID
	}

	s.Cache.Invalidate(tokencache.KindAccess, userID)
	s.disconnect(userID, sessionID)
	l.Info("logged out", slog.String("sid", sessionID))
	return nil
}

func (s *TokenService) disconnect(userID, sessionID string) {
	if s.Connections == nil {
		return
	}
	s.Connections.DisconnectSession(userID, sessionID, domain.CloseInvalidToken, "session revoked")
}

// ValidateAccessToken is the slow path behind the token cache: verify the
// signature and expiry, then confirm the account and its session still
// exist. On success the token is put back in the cache, unless a fresher
// one got there first or a logout landed while the session was checked.
func (s *TokenService) ValidateAccessToken(ctx context.Context, userID, token string) (jwtx.Claims, error) {
	stamp := s.Cache.Stamp(userID)

	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			return jwtx.Claims{}, reject(ReasonExpired, err)
		case errors.Is(err, jwtx.ErrUnknownKID):
			// Signed before a restart replaced the keys. The session may
			// still be good, so send the client to refresh.
			return jwtx.Claims{}, reject(ReasonExpired, err)
		case errors.Is(err, jwtx.ErrMalformed):
			return jwtx.Claims{}, reject(ReasonMalformed, err)
		default:
			return jwtx.Claims{}, reject(ReasonInvalid, err)
		}
	}
	if claims.Subject != userID {
		return jwtx.Claims{}, reject(ReasonInvalid, errors.New("subject mismatch"))
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.Claims{}, reject(ReasonInvalid, errors.New("unknown user"))
		}
		return jwtx.Claims{}, err
	}

	if err := s.sessionLive(ctx, user, claims.SID); err != nil {
		return jwtx.Claims{}, err
	}

	if !s.Cache.PutIfNewerSince(stamp, tokencache.KindAccess, userID, token, claims.Expiry()) &&
		s.Cache.Stamp(userID) != stamp {
		// Something was invalidated meanwhile, possibly this session.
		if err := s.sessionLive(ctx, user, claims.SID); err != nil {
			return jwtx.Claims{}, err
		}
	}
	return claims, nil
}

func (s *TokenService) sessionLive(ctx context.Context, user domain.User, sid string) error {
	if user.Guest {
		if _, ok := s.Cache.Lookup(tokencache.KindGuestRefresh, user.ID); !ok {
			return reject(ReasonInvalid, errors.New("guest session gone"))
		}
		return nil
	}

	rt, err := s.Store.RefreshTokens().GetSession(ctx, user.ID, sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(ReasonInvalid, errors.New("unknown session"))
		}
		return err
	}
	if !rt.Active(s.now()) {
		return reject(ReasonInvalid, errors.New("session revoked"))
	}
	return nil
}

func (s *TokenService) signAccess(user domain.User, sessionID string, now time.Time) (string, time.Time, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return "", time.Time{}, errors.New("no signing key")
	}

	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:       user.ID,
		SessionID:     sessionID,
		Scopes:        scopesFor(user),
		Guest:         user.Guest,
		Username:      user.Username,
		PreferredName: user.PreferredName,
		Issuer:        s.Issuer,
		TTL:           s.accessTTL(),
		Now:           now,
	})

	token, err := signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.Expiry(), nil
}

func (s *TokenService) pair(user domain.User, access, refresh string) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL() / time.Second),
		Scope:        strings.Join(scopesFor(user), " "),
		UserID:       user.ID,
		Guest:        user.Guest,
	}
}

// Guests can chat but never manage rooms.
func scopesFor(user domain.User) []string {
	if user.Guest {
		return []string{jwtx.ScopeChat}
	}
	return []string{jwtx.ScopeChat, jwtx.ScopeRoomsManage}
}
