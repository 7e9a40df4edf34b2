package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/barchat/pkg/cryptox"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "barchat-test"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newSigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	s, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return s
}

func TestEdDSASignAndVerify(t *testing.T) {
	s := newSigner(t, "kid-1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.Add(s.KID(), s.PublicKey()))

	now := time.Now()
	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:       "user-1",
		SessionID:     "sess-1",
		Scopes:        []string{jwtx.ScopeChat},
		Username:      "alice",
		PreferredName: "Alice",
		Issuer:        testIssuer,
		TTL:           time.Minute,
		Now:           now,
	})

	token, err := s.Sign(claims)
	require.NoError(t, err)
	require.True(t, jwtx.WellFormed(token))

	got, err := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{Issuer: testIssuer}).Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "sess-1", got.SID)
	require.Equal(t, "alice", got.Username)
	require.True(t, got.HasScope(jwtx.ScopeChat))
	require.False(t, got.HasScope(jwtx.ScopeRoomsManage))
	require.False(t, got.Guest)
	require.NotEmpty(t, got.ID)
}

func TestVerifyExpiryBoundary(t *testing.T) {
	s := newSigner(t, "kid-1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.Add(s.KID(), s.PublicKey()))

	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	v := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{Issuer: testIssuer, Now: clock.Now})

	token, err := s.Sign(jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject: "u", Issuer: testIssuer, Now: t0,
	}))
	require.NoError(t, err)

	clock.now = t0.Add(4*time.Minute + 59*time.Second)
	_, err = v.Verify(token)
	require.NoError(t, err)

	clock.now = t0.Add(5*time.Minute + time.Second)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyFailures(t *testing.T) {
	s := newSigner(t, "kid-1")
	other := newSigner(t, "kid-2")

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.Add(s.KID(), s.PublicKey()))
	v := jwtx.NewVerifierEdDSA(keys, jwtx.VerifyOptions{Issuer: testIssuer})

	good := jwtx.NewAccessClaims(jwtx.AccessParams{Subject: "u", Issuer: testIssuer, Now: time.Now()})

	t.Run("wrong issuer", func(t *testing.T) {
		bad := good
		bad.Issuer = "someone-else"
		tok, err := s.Sign(bad)
		require.NoError(t, err)
		_, err = v.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("unknown kid", func(t *testing.T) {
		tok, err := other.Sign(good)
		require.NoError(t, err)
		_, err = v.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("tampered signature", func(t *testing.T) {
		tok, err := s.Sign(good)
		require.NoError(t, err)
		tampered := tok[:len(tok)-4] + "AAAA"
		if tampered == tok {
			tampered = tok[:len(tok)-4] + "BBBB"
		}
		_, err = v.Verify(tampered)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestWellFormed(t *testing.T) {
	s := newSigner(t, "kid-1")
	tok, err := s.Sign(jwtx.NewAccessClaims(jwtx.AccessParams{Subject: "u", Issuer: testIssuer, Now: time.Now()}))
	require.NoError(t, err)

	require.True(t, jwtx.WellFormed(tok))
	for _, in := range []string{"", "abc", "a.b", "a..c", "a.b.c.d", "!!!.###.$$$"} {
		require.False(t, jwtx.WellFormed(in), in)
	}
}

func TestEphemeralKeyManager(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{})
	require.Error(t, err)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer, NumKeys: 3})
	require.NoError(t, err)
	require.True(t, km.IsReady())

	for range 10 {
		tok, err := km.GetSigner().Sign(jwtx.NewAccessClaims(jwtx.AccessParams{
			Subject: "u", Issuer: testIssuer, Now: time.Now(),
		}))
		require.NoError(t, err)
		_, err = km.Verifier.Verify(tok)
		require.NoError(t, err)
	}
}
