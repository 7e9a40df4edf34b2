package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

// liveSession refuses requests whose access token, although correctly
// signed, belongs to a session that has since logged out. It must run after
// httpx.AuthnMiddleware. The usual request is a token cache hit.
func liveSession(gate *service.AuthGate) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, err := gate.Admit(ctx, httpx.UserID(ctx), httpx.AccessToken(ctx))
			var rej *service.AuthRejectedError
			switch {
			case errors.As(err, &rej):
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="session ended"`)
				chatsdk.ErrInvalidToken.WithDescription("session ended").WriteError(w)
				return
			case err != nil:
				slogx.FromContext(ctx).Error("session check failed", "err", err)
				chatsdk.ErrServerError.WriteError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
