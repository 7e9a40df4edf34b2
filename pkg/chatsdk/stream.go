package chatsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send while the stream has no socket.
var ErrNotConnected = errors.New("chatsdk: stream not connected")

// Heartbeat sentinels, sent as plain text frames.
const (
	heartbeatPing = "ping"
	heartbeatPong = "pong"
)

// Stream keeps one realtime socket open for a Session.
//
// Run reconnects on its own: a 4002 close refreshes the access token and
// reconnects at once, a 4001 close ends Run with ErrReauthRequired, and
// every other drop is retried with exponential backoff.
type Stream struct {
	session *Session

	// Handler receives every decoded frame. It runs on the read goroutine,
	// so it must not block for long.
	Handler func(Frame)

	// OnConnect runs after the server has answered on a new socket. Pull
	// GetState here, anything sent while disconnected was missed.
	OnConnect func()

	// PingInterval paces the text heartbeat. Defaults to 25s.
	PingInterval time.Duration

	// NewBackOff builds the reconnect policy. Defaults to an unbounded
	// exponential backoff between 500ms and 30s.
	NewBackOff func() backoff.BackOff

	Dialer *websocket.Dialer

	writeMu sync.Mutex
	ws      *websocket.Conn
}

// Stream creates a stream for s. Nothing connects until Run.
func (s *Session) Stream(handler func(Frame)) *Stream {
	return &Stream{session: s, Handler: handler}
}

func (st *Stream) pingInterval() time.Duration {
	if st.PingInterval > 0 {
		return st.PingInterval
	}
	return 25 * time.Second
}

func (st *Stream) newBackOff() backoff.BackOff {
	if st.NewBackOff != nil {
		return st.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (st *Stream) dialer() *websocket.Dialer {
	if st.Dialer != nil {
		return st.Dialer
	}
	return websocket.DefaultDialer
}

// Run connects and keeps reconnecting until ctx is done, the server
// rejects the credentials, or the backoff gives up.
func (st *Stream) Run(ctx context.Context) error {
	b := st.newBackOff()
	b.Reset()

	retriedExpired := false
	for {
		token, err := st.session.getValidToken(ctx)
		if err != nil {
			return err
		}

		healthy, err := st.connect(ctx, token)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if healthy {
			b.Reset()
			retriedExpired = false
		}

		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			switch ce.Code {
			case CloseInvalidToken:
				return fmt.Errorf("%w: %s", ErrReauthRequired, ce.Text)
			case CloseTokenExpired:
				if !retriedExpired {
					retriedExpired = true
					if err := st.session.forceRefresh(ctx, token); err != nil {
						return err
					}
					continue
				}
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// connect serves one socket until it drops. healthy reports whether the
// server answered anything before that.
func (st *Stream) connect(ctx context.Context, token string) (healthy bool, err error) {
	u, err := socketURL(st.session.client.BaseURL, st.session.userID)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := st.dialer().DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return false, err
	}

	st.writeMu.Lock()
	st.ws = ws
	st.writeMu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		st.writeMu.Lock()
		st.ws = nil
		st.writeMu.Unlock()
		_ = ws.Close()
	}()

	go st.heartbeat(ctx, ws, done)

	// The first ping goes out at once so a healthy server answers quickly.
	_ = st.writeText(ws, []byte(heartbeatPing))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return healthy, err
		}
		if !healthy {
			healthy = true
			if st.OnConnect != nil {
				st.OnConnect()
			}
		}

		if strings.HasPrefix(string(data), heartbeatPong) {
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if st.Handler != nil {
			st.Handler(f)
		}
	}
}

func (st *Stream) heartbeat(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(st.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			// Unblocks ReadMessage.
			_ = ws.Close()
			return
		case <-ticker.C:
			if err := st.writeText(ws, []byte(heartbeatPing)); err != nil {
				return
			}
		}
	}
}

func (st *Stream) writeText(ws *websocket.Conn, data []byte) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	if err := ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// Send posts a message into a room. The outcome arrives later as an ack
// frame carrying msg.TempID.
func (st *Stream) Send(msg OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Type: FrameMessage, Code: CodeRoomMessage, Data: data})
	if err != nil {
		return err
	}

	st.writeMu.Lock()
	ws := st.ws
	st.writeMu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return st.writeText(ws, frame)
}

// socketURL turns the http(s) base URL into the socket endpoint.
func socketURL(base, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/ws"
	u.RawQuery = url.Values{"user_id": {userID}}.Encode()
	return u.String(), nil
}
