package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
)

func TestAdmitExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "alice")

	f.clock.Advance(4*time.Minute + 59*time.Second)
	adm, err := f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, adm.Cached)
	require.Equal(t, pair.UserID, adm.UserID)
	require.NotEmpty(t, adm.SessionID)

	f.clock.Advance(2 * time.Second)
	_, err = f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
	requireRejected(t, err, ReasonExpired)

	var rej *AuthRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, domain.CloseTokenExpired, rej.CloseCode())
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestAdmitMalformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "alice")

	tests := []struct {
		name, userID, token string
	}{
		{"empty token", pair.UserID, ""},
		{"garbage", pair.UserID, "not-a-jwt"},
		{"missing segment", pair.UserID, "a.b"},
		{"empty user", "", pair.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.Admit(ctx, tt.userID, tt.token)
			requireRejected(t, err, ReasonMalformed)

			var rej *AuthRejectedError
			require.ErrorAs(t, err, &rej)
			require.Equal(t, domain.CloseInvalidToken, rej.CloseCode())
		})
	}
}

func TestAdmitSlowPath(t *testing.T) {
	ctx := context.Background()

	t.Run("cache miss repopulates", func(t *testing.T) {
		f := newFixture(t)
		pair := f.login(t, "alice")
		f.cache.Invalidate(tokencache.KindAccess, pair.UserID)

		adm, err := f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
		require.NoError(t, err)
		require.False(t, adm.Cached)

		adm, err = f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
		require.NoError(t, err)
		require.True(t, adm.Cached)
	})

	t.Run("eviction is a miss, not a rejection", func(t *testing.T) {
		f := newFixture(t, tokencache.WithShards(1), tokencache.WithMaxEntries(1))
		alice := f.login(t, "alice")
		_ = f.login(t, "bobby")

		_, ok := f.cache.Get(tokencache.KindAccess, alice.UserID)
		require.False(t, ok)

		adm, err := f.gate.Admit(ctx, alice.UserID, alice.AccessToken)
		require.NoError(t, err)
		require.False(t, adm.Cached)
	})

	t.Run("stale token after refresh still valid", func(t *testing.T) {
		f := newFixture(t)
		pair := f.login(t, "alice")
		next, err := f.tokens.Refresh(ctx, pair.UserID, pair.RefreshToken)
		require.NoError(t, err)

		_, err = f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
		require.NoError(t, err)

		// The older token must not displace the fresher cached one.
		cached, _ := f.cache.Get(tokencache.KindAccess, pair.UserID)
		require.Equal(t, next.AccessToken, cached)
	})

	t.Run("token for someone else", func(t *testing.T) {
		f := newFixture(t)
		alice := f.login(t, "alice")
		bob := f.login(t, "bobby")

		_, err := f.gate.Admit(ctx, bob.UserID, alice.AccessToken)
		requireRejected(t, err, ReasonInvalid)
	})

	t.Run("key this process never had", func(t *testing.T) {
		f := newFixture(t)
		alice := f.login(t, "alice")

		other := newFixture(t)
		foreign := other.login(t, "alice")

		_, err := f.gate.Admit(ctx, alice.UserID, foreign.AccessToken)
		requireRejected(t, err, ReasonExpired)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("bad signature on a known key", func(t *testing.T) {
		f := newFixture(t)
		alice := f.login(t, "alice")
		bob := f.login(t, "bobby")
		f.cache.Invalidate(tokencache.KindAccess, alice.UserID)

		parts := strings.Split(alice.AccessToken, ".")
		parts[2] = strings.Split(bob.AccessToken, ".")[2]

		_, err := f.gate.Admit(ctx, alice.UserID, strings.Join(parts, "."))
		requireRejected(t, err, ReasonInvalid)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})
}

func TestAdmitAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "alice")

	// A restart brings new signing keys and an empty cache over the same
	// database.
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "barchat-test", Now: f.clock.Now})
	require.NoError(t, err)
	f.tokens.KeyManager = km
	f.cache.InvalidateSubject(pair.UserID)

	_, err = f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
	requireRejected(t, err, ReasonExpired)

	var rej *AuthRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, domain.CloseTokenExpired, rej.CloseCode())

	next, err := f.tokens.Refresh(ctx, pair.UserID, pair.RefreshToken)
	require.NoError(t, err)

	adm, err := f.gate.Admit(ctx, pair.UserID, next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, pair.UserID, adm.UserID)
}

// pausedSessions answers the first GetSession from the database, then
// holds the answer until release is closed.
type pausedSessions struct {
	store.RefreshTokens
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (p *pausedSessions) GetSession(ctx context.Context, userID, sid string) (domain.RefreshToken, error) {
	rt, err := p.RefreshTokens.GetSession(ctx, userID, sid)
	if p.calls.Add(1) == 1 {
		close(p.entered)
		<-p.release
	}
	return rt, err
}

type pausedStore struct {
	store.Store
	tokens *pausedSessions
}

func (s *pausedStore) RefreshTokens() store.RefreshTokens { return s.tokens }

func TestAdmitRacingLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.login(t, "alice")
	f.cache.Invalidate(tokencache.KindAccess, pair.UserID)

	paused := &pausedSessions{
		RefreshTokens: f.store.RefreshTokens(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	f.tokens.Store = &pausedStore{Store: f.store, tokens: paused}

	errc := make(chan error, 1)
	go func() {
		_, err := f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
		errc <- err
	}()

	// The session has been read as active; now it is revoked.
	<-paused.entered
	claims, err := jwtx.Peek(pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Logout(ctx, claims, pair.RefreshToken, false))
	close(paused.release)

	requireRejected(t, <-errc, ReasonInvalid)

	_, ok := f.cache.Get(tokencache.KindAccess, pair.UserID)
	require.False(t, ok, "revoked token must not be cached")

	_, err = f.gate.Admit(ctx, pair.UserID, pair.AccessToken)
	requireRejected(t, err, ReasonInvalid)
}

type failingValidator struct{ err error }

func (v failingValidator) ValidateAccessToken(context.Context, string, string) (jwtx.Claims, error) {
	return jwtx.Claims{}, v.err
}

func TestAdmitInfrastructureError(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "alice")
	f.cache.Invalidate(tokencache.KindAccess, pair.UserID)

	boom := errors.New("database is locked")
	gate := &AuthGate{Cache: f.cache, Validator: failingValidator{err: boom}}

	_, err := gate.Admit(context.Background(), pair.UserID, pair.AccessToken)
	require.ErrorIs(t, err, boom)

	var rej *AuthRejectedError
	require.False(t, errors.As(err, &rej))
}

func TestHandshakeStateString(t *testing.T) {
	require.Equal(t, "RECEIVED", StateReceived.String())
	require.Equal(t, "VALIDATING", StateValidating.String())
	require.Equal(t, "ACCEPTED", StateAccepted.String())
	require.Equal(t, "REJECTED", StateRejected.String())
}
