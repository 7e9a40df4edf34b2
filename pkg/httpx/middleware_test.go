package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := httpx.BearerToken(req)
	require.False(t, ok)

	req.Header.Set("Authorization", "bearer abc.def.ghi")
	tok, ok := httpx.BearerToken(req)
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", tok)

	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	_, ok = httpx.BearerToken(req)
	require.False(t, ok)
}

func TestAuthnAndScopes(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "test"})
	require.NoError(t, err)

	sign := func(scopes ...string) string {
		tok, err := km.GetSigner().Sign(jwtx.NewAccessClaims(jwtx.AccessParams{
			Subject: "user-1", Issuer: "test", Scopes: scopes, Now: time.Now(),
		}))
		require.NoError(t, err)
		return tok
	}

	var seenUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = httpx.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := httpx.Chain(inner, httpx.AuthnMiddleware(km.Verifier), httpx.RequireScopes(jwtx.ScopeRoomsManage))

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/rooms", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing token", func(t *testing.T) {
		rec := do("")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("bad token", func(t *testing.T) {
		require.Equal(t, http.StatusUnauthorized, do("a.b.c").Code)
	})

	t.Run("insufficient scope", func(t *testing.T) {
		rec := do(sign(jwtx.ScopeChat))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "insufficient_scope")
	})

	t.Run("ok", func(t *testing.T) {
		rec := do(sign(jwtx.ScopeChat, jwtx.ScopeRoomsManage))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "user-1", seenUser)
	})
}
