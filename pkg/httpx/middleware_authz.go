package httpx

import (
	"net/http"
	"strings"
)

// RequireScopes rejects callers whose token lacks any of required. Guests
// only hold "chat", so this is what keeps them out of room management.
func RequireScopes(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			for _, s := range required {
				if !claims.HasScope(s) {
					w.Header().Set("WWW-Authenticate",
						`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
					WriteJSON(w, http.StatusForbidden, ErrorBody{
						Code:        "insufficient_scope",
						Description: "token lacks scope " + s,
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
