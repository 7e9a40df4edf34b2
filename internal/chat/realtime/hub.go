package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

const (
	DefaultSendQueueSize = 256
	DefaultWriteTimeout  = 10 * time.Second
	DefaultMaxFrameBytes = 64 << 10
	DefaultMessageRate   = rate.Limit(10)
	DefaultMessageBurst  = 20
)

var ErrHubStopped = errors.New("hub is not running")

// Config tunes every connection the hub serves.
type Config struct {
	Heartbeat     HeartbeatConfig
	SendQueueSize int
	WriteTimeout  time.Duration
	MaxFrameBytes int64

	// Inbound message frames allowed per connection.
	MessageRate  rate.Limit
	MessageBurst int

	PresenceWorkers int
}

func (c Config) withDefaults() Config {
	c.Heartbeat = c.Heartbeat.withDefaults()
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.MessageRate <= 0 {
		c.MessageRate = DefaultMessageRate
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = DefaultMessageBurst
	}
	return c
}

// Hub owns the registry, presence and router for one process. It is
// created at startup, Started once and Shutdown once.
type Hub struct {
	Registry *Registry
	Presence *Presence
	Router   *Router

	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // orders conns.Add against Shutdown
	running atomic.Bool
	conns   sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(cfg Config, rooms RoomDirectory, messages MessageStore, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()

	presence := NewPresence(rooms, logger, cfg.PresenceWorkers)
	registry := NewRegistry(presence.Publish)
	presence.Registry = registry

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		Registry: registry,
		Presence: presence,
		Router: &Router{
			Rooms:    rooms,
			Messages: messages,
			Registry: registry,
			Logger:   logger,
		},
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Hub) Config() Config { return h.cfg }

func (h *Hub) Start() {
	h.Presence.Start(h.ctx)
	h.running.Store(true)
	h.logger.Info("realtime hub started",
		slog.Duration("heartbeat_interval", h.cfg.Heartbeat.Interval),
		slog.Int("heartbeat_max_missed", h.cfg.Heartbeat.MaxMissed),
		slog.Int("send_queue", h.cfg.SendQueueSize))
}

// Running reports whether the hub accepts connections.
func (h *Hub) Running() bool { return h.running.Load() }

// Serve takes over an upgraded socket and blocks until it closes. ctx only
// carries the request logger, the connection's lifetime belongs to the hub.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, id Identity) error {
	if !h.track() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(domain.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = ws.Close()
		return ErrHubStopped
	}
	defer h.conns.Done()

	logger := slogx.FromContext(ctx)
	c := newConn(ws, id, h.cfg, logger)
	connCtx := slogx.WithContext(h.ctx, c.logger)
	c.Serve(connCtx, h)
	return nil
}

func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running.Load() {
		return false
	}
	h.conns.Add(1)
	return true
}

func (h *Hub) OnOpen(ctx context.Context, c *Conn) error {
	if !h.running.Load() {
		return ErrHubStopped
	}
	first := h.Registry.Register(c)
	c.logger.Info("connection opened", slog.Bool("first", first), slog.Bool("guest", c.Guest))

	// Shutdown may have swept the registry between the check and Register.
	if !h.running.Load() {
		c.Close(domain.CloseGoingAway, "server shutting down")
	}
	return nil
}

func (h *Hub) OnMessage(ctx context.Context, c *Conn, env Envelope) {
	switch env.Type {
	case TypeMessage:
		var in InboundMessage
		if err := json.Unmarshal(env.Data, &in); err != nil {
			h.OnError(ctx, c, ErrBadFrame)
			return
		}
		if !c.limiter.Allow() {
			if frame, err := nackFrame(in.TempID, in.RoomID, ErrRateLimited); err == nil {
				_ = c.Enqueue(frame)
			}
			c.logger.Debug("inbound rate limited", slog.String("temp_id", in.TempID))
			return
		}
		h.Router.Handle(ctx, c, in)
	default:
		h.OnError(ctx, c, ErrBadFrame)
	}
}

func (h *Hub) OnError(ctx context.Context, c *Conn, err error) {
	c.logger.Warn("bad frame", slog.Any("error", err))
	if frame, ferr := noticeFrame(CodeBadFrame, errorCode(err)); ferr == nil {
		_ = c.Enqueue(frame)
	}
}

func (h *Hub) OnClose(ctx context.Context, c *Conn, info CloseInfo) {
	last := h.Registry.Unregister(c)

	attrs := []any{
		slog.Int("code", info.Code),
		slog.String("reason", info.Reason),
		slog.Bool("by_server", info.ByServer),
		slog.Bool("last", last),
	}
	switch {
	case info.HeartbeatTimeout:
		c.logger.Info("heartbeat timeout", attrs...)
	case info.Err != nil:
		c.logger.Warn("connection broken", append(attrs, slog.Any("error", info.Err))...)
	default:
		c.logger.Info("connection closed", attrs...)
	}
}

// Shutdown stops accepting, closes every connection with 1001 and waits for
// them to finish, then drains presence.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	wasRunning := h.running.Swap(false)
	h.mu.Unlock()
	if !wasRunning {
		return nil
	}

	n := h.Registry.CloseAll(domain.CloseGoingAway, "server shutting down")
	h.logger.Info("realtime hub draining", slog.Int("connections", n))

	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	h.cancel()
	h.Presence.Stop()
	h.logger.Info("realtime hub stopped")
	return err
}
