package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/realtime"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe. Degraded when the database does not answer, no signing key is loaded, or the realtime hub is not accepting sockets.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	chatsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	chatsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	keys *jwtx.KeyManager,
	hub *realtime.Hub,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &chatsdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
			Hub:      "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		degrade := func(field *string, msg string) {
			*field = "error: " + msg
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := st.Ping(r.Context()); err != nil {
			degrade(&checks.Database, err.Error())
		}
		if keys == nil || !keys.IsReady() {
			degrade(&checks.Signer, "no keys loaded")
		}
		if hub == nil || !hub.Running() {
			degrade(&checks.Hub, "not running")
		}

		httpx.WriteJSON(w, statusCode, chatsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
