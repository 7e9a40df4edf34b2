package http

import (
	"net/http"

	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
)

// JWKSHandler publishes the keys that sign access tokens, so other services
// can verify them without calling back. Keys change on every restart.
//
//	@Summary		Get JWKS
//	@Description	Returns the Ed25519 keys that sign access tokens. The set is regenerated on restart.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	chatsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, chatsdk.JWKSResponse(keys.JWKS()))
	}
}
