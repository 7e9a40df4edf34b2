package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aussiebroadwan/barchat/internal/chat/realtime"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

var errHubUnavailable = &chatsdk.APIError{
	StatusCode:  http.StatusServiceUnavailable,
	Code:        "unavailable",
	Description: "server is shutting down",
}

// WSHandler serves the socket handshake on GET /v1/ws and
// GET /v1/ws/{userID}/{token}.
type WSHandler struct {
	Gate *service.AuthGate
	Hub  *realtime.Hub

	// AllowedOrigins lists scheme://host values browsers may connect from.
	// Empty allows any origin.
	AllowedOrigins []string

	once     sync.Once
	upgrader websocket.Upgrader
}

// ServeHTTP godoc
//
//	@Summary		Realtime Socket
//	@Description	Upgrades to a WebSocket. Credentials come from the path, from user_id and token query parameters, or from a Bearer header plus user_id.
//	@Description	A rejected handshake is still upgraded and then closed with 4001 (log in again) or 4002 (refresh, then reconnect).
//	@Tags			Realtime
//	@Param			user_id	query	string	false	"User ID"
//	@Param			token	query	string	false	"Access token"
//	@Success		101
//	@Failure		403	{string}	string				"origin not allowed"
//	@Failure		500	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		503	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/ws [get].
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	h.once.Do(func() {
		h.upgrader = websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      h.checkOrigin,
		}
	})

	if !h.Hub.Running() {
		errHubUnavailable.WriteError(w)
		return
	}

	userID, token := credentials(r)
	adm, err := h.Gate.Admit(ctx, userID, token)

	var rej *service.AuthRejectedError
	if err != nil && !errors.As(err, &rej) {
		log.Error("handshake failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		log.Debug("upgrade failed", "err", err)
		return
	}

	// Browsers cannot read the status of a failed handshake, so rejections
	// travel as a close code on an upgraded socket.
	if rej != nil {
		deadline := time.Now().Add(h.Hub.Config().WriteTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(rej.CloseCode(), string(rej.Reason)), deadline)
		_ = ws.Close()
		return
	}

	err = h.Hub.Serve(ctx, ws, realtime.Identity{
		UserID:    adm.UserID,
		SessionID: adm.SessionID,
		Guest:     adm.Guest,
	})
	if err != nil {
		log.Debug("socket not served", "err", err)
	}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Not a browser.
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	want := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, o := range h.AllowedOrigins {
		if o == "*" || strings.ToLower(strings.TrimSuffix(o, "/")) == want {
			return true
		}
	}
	slogx.FromContext(r.Context()).Warn("blocked socket from disallowed origin", "origin", origin)
	return false
}

// credentials picks user ID and token from the path, the query, or the
// Authorization header, in that order.
func credentials(r *http.Request) (string, string) {
	if userID, token := r.PathValue("userID"), r.PathValue("token"); userID != "" || token != "" {
		return userID, token
	}

	q := r.URL.Query()
	userID := q.Get("user_id")
	if token := q.Get("token"); token != "" {
		return userID, token
	}
	if token, ok := httpx.BearerToken(r); ok {
		return userID, token
	}
	return userID, ""
}
