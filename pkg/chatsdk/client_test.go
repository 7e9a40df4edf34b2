package chatsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/barchat/internal/chat/app"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
)

func newServer(t *testing.T) *chatsdk.SDKClient {
	t.Helper()
	dir := t.TempDir()

	cfg := app.LoadConfig()
	cfg.DatabaseFile = filepath.Join(dir, "chat.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.LogLevel = "error"
	cfg.ShutdownGracePeriod = 2 * time.Second

	a, err := app.New(cfg)
	require.NoError(t, err)
	a.Start()

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		_ = a.Shutdown()
		srv.Close()
	})
	return chatsdk.NewSDKClient(srv.URL + "/")
}

func registerAndLogin(t *testing.T, c *chatsdk.SDKClient, username string) *chatsdk.Session {
	t.Helper()
	ctx := context.Background()

	_, err := c.Register(ctx, username, "correct-horse", "")
	require.NoError(t, err)
	s, err := c.Login(ctx, username, "correct-horse")
	require.NoError(t, err)
	return s
}

func TestAccountsAndRooms(t *testing.T) {
	ctx := context.Background()
	c := newServer(t)

	reg, err := c.Register(ctx, "Alice", "correct-horse", "Al")
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.Username)

	_, err = c.Register(ctx, "alice", "correct-horse", "")
	assert.ErrorIs(t, err, chatsdk.ErrUsernameTaken)

	_, err = c.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, chatsdk.ErrInvalidGrant)

	alice, err := c.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, alice.UserID())
	assert.True(t, alice.HasScope("rooms:manage"))

	room, err := alice.CreateRoom(ctx, "general")
	require.NoError(t, err)

	guest, err := c.LoginAsGuest(ctx, "visitor")
	require.NoError(t, err)
	assert.True(t, guest.Guest())
	assert.False(t, guest.HasScope("rooms:manage"))

	_, err = guest.CreateRoom(ctx, "nope")
	var apiErr *chatsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	_, err = guest.History(ctx, room.ID, "", 0)
	assert.ErrorIs(t, err, chatsdk.ErrNotMember)

	_, err = guest.JoinRoom(ctx, room.ID)
	require.NoError(t, err)

	state, err := guest.GetState(ctx)
	require.NoError(t, err)
	require.Len(t, state.Rooms, 1)
	assert.Equal(t, room.ID, state.Rooms[0].Room.ID)

	msgs, err := guest.History(ctx, room.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, guest.MarkRead(ctx, room.ID))
	require.NoError(t, guest.LeaveRoom(ctx, room.ID))

	_, err = guest.JoinRoom(ctx, "does-not-exist")
	assert.ErrorIs(t, err, chatsdk.ErrRoomNotFound)

	health, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Checks.Hub)
}

func TestSessionRefreshesWhenDue(t *testing.T) {
	ctx := context.Background()
	c := newServer(t)
	alice := registerAndLogin(t, c, "alice")

	// Zero lifetime makes the first call refresh.
	resumed := c.NewSessionFromTokens(alice.UserID(), "stale", alice.RefreshToken(), "chat", 0)
	_, err := resumed.GetState(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", resumed.AccessToken())
	assert.Equal(t, alice.RefreshToken(), resumed.RefreshToken())

	bogus := c.NewSessionFromTokens(alice.UserID(), "stale", "not-a-refresh-token", "chat", 0)
	_, err = bogus.GetState(ctx)
	assert.ErrorIs(t, err, chatsdk.ErrReauthRequired)

	refresh := alice.RefreshToken()
	require.NoError(t, alice.Logout(ctx, false))
	assert.Empty(t, alice.RefreshToken())

	_, err = c.AuthenticateWithRefreshToken(ctx, alice.UserID(), refresh)
	assert.ErrorIs(t, err, chatsdk.ErrInvalidGrant)
}

type recorder struct {
	mu     sync.Mutex
	frames []chatsdk.Frame
}

func (r *recorder) handle(f chatsdk.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) find(code int) (chatsdk.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.frames {
		if f.Code == code {
			return f, true
		}
	}
	return chatsdk.Frame{}, false
}

func runStream(t *testing.T, ctx context.Context, st *chatsdk.Stream) (<-chan struct{}, <-chan error) {
	t.Helper()

	connected := make(chan struct{})
	var once sync.Once
	st.OnConnect = func() { once.Do(func() { close(connected) }) }

	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()
	return connected, done
}

func TestStreamDeliversMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newServer(t)
	alice := registerAndLogin(t, c, "alice")
	bob, err := c.LoginAsGuest(ctx, "bob")
	require.NoError(t, err)

	room, err := alice.CreateRoom(ctx, "general")
	require.NoError(t, err)
	_, err = bob.JoinRoom(ctx, room.ID)
	require.NoError(t, err)

	var aliceFrames, bobFrames recorder
	aliceStream := alice.Stream(aliceFrames.handle)
	bobStream := bob.Stream(bobFrames.handle)

	aliceUp, aliceDone := runStream(t, ctx, aliceStream)
	bobUp, bobDone := runStream(t, ctx, bobStream)
	for _, up := range []<-chan struct{}{aliceUp, bobUp} {
		select {
		case <-up:
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not connect")
		}
	}

	require.NoError(t, aliceStream.Send(chatsdk.OutboundMessage{RoomID: room.ID, Body: "hello", TempID: "t-1"}))

	require.Eventually(t, func() bool {
		_, ok := bobFrames.find(chatsdk.CodeRoomMessage)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	f, _ := bobFrames.find(chatsdk.CodeRoomMessage)
	msg, err := f.Message()
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, alice.UserID(), msg.SenderID)

	require.Eventually(t, func() bool {
		_, ok := aliceFrames.find(chatsdk.CodeAck)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	f, _ = aliceFrames.find(chatsdk.CodeAck)
	ack, err := f.Ack()
	require.NoError(t, err)
	assert.Equal(t, "t-1", ack.TempID)
	assert.Equal(t, msg.ID, ack.MessageID)

	cancel()
	for _, done := range []<-chan error{aliceDone, bobDone} {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not stop")
		}
	}
}

func TestStreamStopsAfterLogout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newServer(t)
	alice := registerAndLogin(t, c, "alice")

	st := alice.Stream(nil)
	up, done := runStream(t, ctx, st)
	select {
	case <-up:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not connect")
	}

	require.NoError(t, alice.Logout(ctx, false))

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, chatsdk.ErrReauthRequired), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream kept running after logout")
	}

	assert.ErrorIs(t, st.Send(chatsdk.OutboundMessage{RoomID: "r", Body: "x"}), chatsdk.ErrNotConnected)
}
