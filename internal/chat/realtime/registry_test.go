package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

// wsPair returns the server end of a live socket and its client end.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-serverSide:
		t.Cleanup(func() { _ = ws.Close() })
		return ws, client
	case <-time.After(readWait):
		t.Fatal("no server side connection")
		return nil, nil
	}
}

func testConn(t *testing.T, userID, sessionID string, cfg Config) (*Conn, *websocket.Conn) {
	t.Helper()
	server, client := wsPair(t)
	return newConn(server, Identity{UserID: userID, SessionID: sessionID}, cfg.withDefaults(), slogx.Discard()), client
}

type transition struct {
	userID string
	online bool
}

type transitionLog struct {
	mu  sync.Mutex
	all []transition
}

func (l *transitionLog) record(userID string, online bool, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, transition{userID, online})
}

func TestRegistryTransitions(t *testing.T) {
	log := &transitionLog{}
	reg := NewRegistry(log.record)

	phone, _ := testConn(t, "alice", "", Config{})
	laptop, _ := testConn(t, "alice", "", Config{})

	require.True(t, reg.Register(phone))
	require.False(t, reg.Register(laptop))
	require.True(t, reg.IsOnline("alice"))
	require.Len(t, reg.Connections("alice"), 2)

	users, conns := reg.Count()
	require.Equal(t, 1, users)
	require.Equal(t, 2, conns)

	require.False(t, reg.Unregister(phone))
	require.False(t, reg.Unregister(phone), "unknown connection is ignored")
	require.True(t, reg.Unregister(laptop))
	require.False(t, reg.IsOnline("alice"))

	require.Equal(t, []transition{{"alice", true}, {"alice", false}}, log.all)
}

func TestRegistrySendOutcomes(t *testing.T) {
	reg := NewRegistry(nil)

	out := reg.Send("nobody", []byte("x"))
	require.Equal(t, NotConnected, out.Status)
	require.Zero(t, out.Connections)

	a1, _ := testConn(t, "alice", "", Config{})
	a2, _ := testConn(t, "alice", "", Config{})
	reg.Register(a1)
	reg.Register(a2)

	out = reg.Send("alice", []byte("x"))
	require.Equal(t, Delivered, out.Status)
	require.Equal(t, 2, out.Connections)

	outs := reg.Broadcast([]string{"alice", "nobody"}, []byte("y"), a1)
	require.Len(t, outs, 2)
	require.Equal(t, Delivered, outs[0].Status)
	require.Equal(t, 1, outs[0].Connections, "skipped connection gets nothing")
	require.Equal(t, NotConnected, outs[1].Status)

	a1.Close(domain.CloseNormal, "bye")
	a2.Close(domain.CloseNormal, "bye")
	out = reg.Send("alice", []byte("z"))
	require.Equal(t, Dropped, out.Status)
	require.ErrorIs(t, out.Err, ErrConnClosed)
}

func TestRegistryConcurrentUse(t *testing.T) {
	reg := NewRegistry(nil)

	var conns []*Conn
	for i := range 8 {
		c, _ := testConn(t, string(rune('a'+i)), "", Config{SendQueueSize: 1024})
		conns = append(conns, c)
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				reg.Register(c)
				_ = reg.Send(c.UserID, []byte("x"))
				reg.Unregister(c)
			}
		}()
	}
	wg.Wait()

	users, n := reg.Count()
	require.Zero(t, users)
	require.Zero(t, n)
}

func TestEnqueueFullQueueDropsConnection(t *testing.T) {
	c, client := testConn(t, "alice", "", Config{SendQueueSize: 2})

	require.NoError(t, c.Enqueue([]byte("1")))
	require.NoError(t, c.Enqueue([]byte("2")))
	require.ErrorIs(t, c.Enqueue([]byte("3")), ErrQueueFull)
	require.ErrorIs(t, c.Enqueue([]byte("4")), ErrConnClosed)

	select {
	case <-c.Closing():
	default:
		t.Fatal("connection not closing")
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := client.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	require.Equal(t, domain.CloseSlowConsumer, ce.Code)
}

func TestDisconnectSessionWithoutSockets(t *testing.T) {
	reg := NewRegistry(nil)
	s1, _ := testConn(t, "alice", "s1", Config{})
	s2, _ := testConn(t, "alice", "s2", Config{})
	reg.Register(s1)
	reg.Register(s2)

	require.Equal(t, 0, reg.DisconnectSession("alice", "s3", domain.CloseInvalidToken, "revoked"))
	require.Equal(t, 1, reg.DisconnectSession("alice", "s1", domain.CloseInvalidToken, "revoked"))

	select {
	case <-s1.Closing():
	default:
		t.Fatal("s1 should be closing")
	}
	select {
	case <-s2.Closing():
		t.Fatal("s2 should be untouched")
	default:
	}

	require.Equal(t, 2, reg.DisconnectSession("alice", "", domain.CloseInvalidToken, "revoked"))
}

func TestDeliveryStatusString(t *testing.T) {
	require.Equal(t, "delivered", Delivered.String())
	require.Equal(t, "not_connected", NotConnected.String())
	require.Equal(t, "dropped", Dropped.String())
	require.Equal(t, "unknown", DeliveryStatus(0).String())
}

func TestDisconnectKeepsCloseCodeWhenQueueIsFull(t *testing.T) {
	reg := NewRegistry(nil)

	revoked, _ := testConn(t, "alice", "s1", Config{SendQueueSize: 2})
	draining, _ := testConn(t, "bobby", "s1", Config{SendQueueSize: 2})
	reg.Register(revoked)
	reg.Register(draining)

	// Nothing drains these queues.
	for _, c := range []*Conn{revoked, draining} {
		require.NoError(t, c.Enqueue([]byte("1")))
		require.NoError(t, c.Enqueue([]byte("2")))
	}

	require.Equal(t, 1, reg.DisconnectSession("alice", "s1", domain.CloseInvalidToken, "session revoked"))
	<-revoked.Closing()
	require.Equal(t, domain.CloseInvalidToken, revoked.closeCode)

	require.Equal(t, 2, reg.CloseAll(domain.CloseGoingAway, "server shutting down"))
	<-draining.Closing()
	require.Equal(t, domain.CloseGoingAway, draining.closeCode)
	require.Equal(t, domain.CloseInvalidToken, revoked.closeCode, "first close wins")
}
