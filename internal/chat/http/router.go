package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/realtime"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"

	_ "github.com/aussiebroadwan/barchat/api/chat" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	TokenService *service.TokenService
	RoomService  *service.RoomService
	AuthGate     *service.AuthGate
	Hub          *realtime.Hub

	// AllowedOrigins for the socket handshake. Empty accepts any origin.
	AllowedOrigins []string
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerRooms()
	r.registerRealtime()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpx.Chain(httpSwagger.Handler(),
		httpx.RateLimitByIP(httpx.PublicLimit),
	))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						BarChat API
//	@version					0.1.0
//	@description				Multi-room chat with a WebSocket push channel. Access tokens are short-lived EdDSA JWTs, refreshed with an opaque refresh token.
//	@description
//	@description				Connect to /v1/ws with a user_id and access token. Close code 4002 means refresh and reconnect, 4001 means log in again.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/barchat
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /token - one bucket per IP and grant type, so routine refreshes
	// never eat into the login budget
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/auth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.ModerateLimit, "grant_type"),
		),
	)

	r.Mux.Handle("POST /v1/auth/guest",
		httpx.Chain(&GuestHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{TokenService: r.TokenService},
			httpx.AuthnMiddleware(r.keys.Verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerRooms() {
	h := &RoomsHandler{RoomService: r.RoomService}
	authed := func(fn http.HandlerFunc, limit httpx.RateLimitConfig, scopes ...string) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.keys.Verifier),
			liveSession(r.AuthGate),
			httpx.RequireScopes(scopes...),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("POST /v1/rooms", authed(h.HandleCreate, httpx.ModerateLimit, jwtx.ScopeRoomsManage))
	r.Mux.Handle("POST /v1/rooms/{id}/join", authed(h.HandleJoin, httpx.ModerateLimit, jwtx.ScopeChat))
	r.Mux.Handle("POST /v1/rooms/{id}/leave", authed(h.HandleLeave, httpx.ModerateLimit, jwtx.ScopeChat))
	r.Mux.Handle("POST /v1/rooms/{id}/read", authed(h.HandleRead, httpx.LenientLimit, jwtx.ScopeChat))
	r.Mux.Handle("GET /v1/rooms/{id}/messages", authed(h.HandleHistory, httpx.LenientLimit, jwtx.ScopeChat))
	r.Mux.Handle("GET /v1/state", authed(h.HandleState, httpx.LenientLimit, jwtx.ScopeChat))
}

func (r *Router) registerRealtime() {
	ws := &WSHandler{
		Gate:           r.AuthGate,
		Hub:            r.Hub,
		AllowedOrigins: r.AllowedOrigins,
	}

	// Reconnect storms come through here, so the limit is per IP and
	// lenient. Token checks happen in the gate, not in AuthnMiddleware.
	limit := httpx.RateLimitByIP(httpx.LenientLimit)
	r.Mux.Handle("GET /v1/ws", httpx.Chain(ws, limit))
	r.Mux.Handle("GET /v1/ws/{userID}/{token}", httpx.Chain(ws, limit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.Hub),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
