package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/barchat/internal/chat/http"
	"github.com/aussiebroadwan/barchat/internal/chat/realtime"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/internal/chat/store/drivers/sqlite"
	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
	"github.com/aussiebroadwan/barchat/pkg/cryptox"
	"github.com/aussiebroadwan/barchat/pkg/jwtx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the chat service together: store, keys, token cache,
// realtime hub, services and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	cache      *tokencache.Cache
	hasher     *cryptox.Hasher
	hub        *realtime.Hub

	// Services
	tokenService        *service.TokenService
	roomService         *service.RoomService
	authGate            *service.AuthGate
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router

	started atomic.Bool
}

// New creates a new Application instance with all dependencies initialized.
// Nothing runs until Start or Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "chat-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewHasher(pepper)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitChatKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.cache = tokencache.New(tokencache.WithMaxEntries(cfg.TokenCacheEntries))
	app.hub = realtime.NewHub(cfg.Realtime(), app.db.Rooms(), app.db.Messages(), app.logger)

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler is the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Start brings up the hub and the housekeeping worker. Run calls it.
func (app *Application) Start() {
	if !app.started.CompareAndSwap(false, true) {
		return
	}
	app.hub.Start()
	app.housekeepingService.Start()
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("chat service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown closes every socket with 1001, drains HTTP, then stops the
// background workers and the database. All of it shares one grace period.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down chat service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Sockets are hijacked connections, server.Shutdown does not wait for them.
	if err := app.hub.Shutdown(ctx); err != nil {
		app.logger.Error("realtime hub did not drain", "error", err)
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.started.Load() {
		app.housekeepingService.Stop()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("chat service stopped")
	return nil
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore("file:" + app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		KeyManager:      app.keyManager,
		Store:           app.db,
		Cache:           app.cache,
		Hasher:          app.hasher,
		Issuer:          app.cfg.Issuer,
		AccessTTL:       app.cfg.AccessTTL,
		RefreshTTL:      app.cfg.RefreshTTL,
		GuestRefreshTTL: app.cfg.GuestRefreshTTL,
		Connections:     app.hub.Registry,
	}

	app.roomService = &service.RoomService{
		Store:    app.db,
		Presence: app.hub.Registry,
	}

	app.authGate = &service.AuthGate{
		Cache:     app.cache,
		Validator: app.tokenService,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.cache,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keyManager, BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.RoomService = app.roomService
	router.AuthGate = app.authGate
	router.Hub = app.hub
	router.AllowedOrigins = app.cfg.AllowedOrigins
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
