package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/pkg/idx"
)

// abortWait bounds the close frame written to a connection being dropped
// for not keeping up.
const abortWait = time.Second

// Identity is who an admitted connection belongs to.
type Identity struct {
	UserID    string
	SessionID string
	Guest     bool
}

// CloseInfo describes how a connection ended.
type CloseInfo struct {
	Code   int
	Reason string

	// ByServer is set when this side initiated the close.
	ByServer bool

	// HeartbeatTimeout is set when the peer went silent. It is a normal
	// disconnect, not an error.
	HeartbeatTimeout bool

	// Err is the transport error, if the connection broke.
	Err error
}

// Handler receives a connection's events. All calls for one connection are
// made from that connection's read loop, one at a time.
type Handler interface {
	// OnOpen runs before the first frame is read. An error closes the
	// connection without calling OnClose.
	OnOpen(ctx context.Context, c *Conn) error
	OnMessage(ctx context.Context, c *Conn, env Envelope)
	OnError(ctx context.Context, c *Conn, err error)
	OnClose(ctx context.Context, c *Conn, info CloseInfo)
}

// Conn is one live WebSocket. Writes go through a bounded queue drained by
// a single writer goroutine, which also sends the keepalive pings. A full
// queue drops the connection instead of blocking whoever is sending.
type Conn struct {
	Identity
	ID string

	ws      *websocket.Conn
	cfg     Config
	send    chan []byte
	limiter *rate.Limiter
	logger  *slog.Logger

	closeOnce   sync.Once
	closing     chan struct{}
	closeCode   int
	closeReason string
	forceClose  *time.Timer

	writerDone chan struct{}
	lastSeen   atomic.Int64
}

func newConn(ws *websocket.Conn, id Identity, cfg Config, logger *slog.Logger) *Conn {
	c := &Conn{
		Identity:   id,
		ID:         idx.New().String(),
		ws:         ws,
		cfg:        cfg,
		send:       make(chan []byte, cfg.SendQueueSize),
		limiter:    rate.NewLimiter(cfg.MessageRate, cfg.MessageBurst),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.logger = logger.With(slog.String("user_id", id.UserID), slog.String("conn_id", c.ID))
	c.touch()
	return c
}

// LastSeen is when the peer last sent anything.
func (c *Conn) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Conn) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

// Closing is closed once Close has been called.
func (c *Conn) Closing() <-chan struct{} { return c.closing }

// Enqueue queues payload for the writer without blocking. When the queue is
// full the connection is dropped with 4008 and ErrQueueFull is returned.
func (c *Conn) Enqueue(payload []byte) error {
	select {
	case <-c.closing:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.abort(domain.CloseSlowConsumer, "slow consumer")
		return ErrQueueFull
	}
}

// offer queues payload only if there is room. Unlike Enqueue a full queue
// is not a reason to drop the connection.
func (c *Conn) offer(payload []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close asks the writer to flush what is queued, send a close frame with
// code and hang up. If the writer doesn't manage within the write timeout
// the socket is closed anyway. Only the first call has any effect.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		c.forceClose = time.AfterFunc(c.cfg.WriteTimeout, func() { _ = c.ws.Close() })
		close(c.closing)
	})
}

// abort closes without flushing. It returns immediately, the close frame is
// written in the background.
func (c *Conn) abort(code int, reason string) {
	c.Close(code, reason)
	go func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(abortWait))
		_ = c.ws.Close()
	}()
}

// Serve runs the connection until it closes. The caller's goroutine becomes
// the read loop.
func (c *Conn) Serve(ctx context.Context, h Handler) {
	if err := h.OnOpen(ctx, c); err != nil {
		c.logger.Warn("connection refused on open", slog.Any("error", err))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "unavailable"),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = c.ws.Close()
		return
	}

	go c.writePump()
	err := c.readPump(ctx, h)

	var info CloseInfo
	select {
	case <-c.closing:
		info = CloseInfo{Code: c.closeCode, Reason: c.closeReason, ByServer: true}
	default:
		info = classifyReadError(err)
		reply := domain.CloseNormal
		if info.HeartbeatTimeout {
			reply = domain.CloseGoingAway
		}
		c.Close(reply, info.Reason)
	}

	<-c.writerDone
	c.forceClose.Stop()
	_ = c.ws.Close()

	h.OnClose(ctx, c, info)
}

func classifyReadError(err error) CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseInfo{Code: ce.Code, Reason: ce.Text}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: "heartbeat timeout", HeartbeatTimeout: true}
	}
	return CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: "read failed", Err: err}
}

func (c *Conn) extendDeadline() error {
	c.touch()
	return c.ws.SetReadDeadline(time.Now().Add(c.cfg.Heartbeat.Timeout()))
}

func (c *Conn) readPump(ctx context.Context, h Handler) error {
	c.ws.SetReadLimit(c.cfg.MaxFrameBytes)
	if err := c.extendDeadline(); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error { return c.extendDeadline() })
	c.ws.SetPingHandler(func(data string) error {
		if err := c.extendDeadline(); err != nil {
			return err
		}
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.extendDeadline(); err != nil {
			return err
		}

		if mt != websocket.TextMessage {
			h.OnError(ctx, c, fmt.Errorf("%w: binary frames are not accepted", ErrBadFrame))
			continue
		}
		if scope, ok := ParseHeartbeat(data); ok {
			_ = c.Enqueue(HeartbeatReply(scope))
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.OnError(ctx, c, fmt.Errorf("%w: not an envelope", ErrBadFrame))
			continue
		}
		h.OnMessage(ctx, c, env)
	}
}

func (c *Conn) write(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) writePump() {
	defer close(c.writerDone)

	ticker := time.NewTicker(c.cfg.Heartbeat.Interval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(payload); err != nil {
				c.logger.Debug("write failed", slog.Any("error", err))
				c.abort(domain.CloseGoingAway, "write failed")
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", slog.Any("error", err))
				c.abort(domain.CloseGoingAway, "ping failed")
				return
			}

		case <-c.closing:
			if c.closeCode != domain.CloseSlowConsumer {
				c.flush()
			}
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
			_ = c.ws.Close()
			return
		}
	}
}

// flush writes whatever is already queued, giving up on the first error.
func (c *Conn) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
