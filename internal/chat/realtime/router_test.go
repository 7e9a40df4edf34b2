package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store/drivers/sqlite"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

func newRouter(t *testing.T) (*Router, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, st.Users().CreateUser(ctx, domain.User{ID: id, Username: id}))
	}
	require.NoError(t, st.Rooms().CreateRoom(ctx, domain.Room{ID: "general", Name: "general", CreatedBy: "alice"}))
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, st.Rooms().AddMember(ctx, domain.RoomMembership{RoomID: "general", UserID: id}))
	}

	return &Router{
		Rooms:    st.Rooms(),
		Messages: st.Messages(),
		Registry: NewRegistry(nil),
		Logger:   slogx.Discard(),
	}, st
}

func TestRouteStates(t *testing.T) {
	r, st := newRouter(t)
	ctx := context.Background()

	res, err := r.Route(ctx, "alice", nil, InboundMessage{RoomID: "general", Body: "hi", TempID: "t"})
	require.NoError(t, err)
	require.Equal(t, StateAcknowledged, res.State)
	require.Equal(t, "t", res.Message.TempID)
	require.Equal(t, []string{"bob"}, res.Unread, "offline members get an unread, the sender does not")

	counts, err := st.Messages().UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, counts["general"])

	res, err = r.Route(ctx, "carol", nil, InboundMessage{RoomID: "general", Body: "hi"})
	require.ErrorIs(t, err, domain.ErrNotMember)
	require.Equal(t, StateReceived, res.State)

	_, err = r.Route(ctx, "alice", nil, InboundMessage{RoomID: "nowhere", Body: "hi"})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	require.Equal(t, "room_not_found", errorCode(err))

	r.Messages = failingMessages{r.Messages}
	res, err = r.Route(ctx, "alice", nil, InboundMessage{RoomID: "general", Body: "hi"})
	require.ErrorIs(t, err, ErrPersistFailed)
	require.Equal(t, StatePersistFailed, res.State)
}

func TestRouteMembershipIsReadFresh(t *testing.T) {
	r, st := newRouter(t)
	ctx := context.Background()

	res, err := r.Route(ctx, "alice", nil, InboundMessage{RoomID: "general", Body: "before"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)

	require.NoError(t, st.Rooms().AddMember(ctx, domain.RoomMembership{RoomID: "general", UserID: "carol"}))

	res, err = r.Route(ctx, "alice", nil, InboundMessage{RoomID: "general", Body: "after"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	require.ElementsMatch(t, []string{"bob", "carol"}, res.Unread)
}

func TestValidateInbound(t *testing.T) {
	tests := []struct {
		name string
		in   InboundMessage
		ok   bool
	}{
		{"plain", InboundMessage{RoomID: "r", Body: "hi"}, true},
		{"attachment only", InboundMessage{RoomID: "r", Attachments: []domain.Attachment{{Key: "k"}}}, true},
		{"no room", InboundMessage{Body: "hi"}, false},
		{"blank", InboundMessage{RoomID: "r", Body: " \n"}, false},
		{"too long", InboundMessage{RoomID: "r", Body: strings.Repeat("é", MaxBodyRunes+1)}, false},
		{"keyless attachment", InboundMessage{RoomID: "r", Attachments: []domain.Attachment{{Name: "x"}}}, false},
		{"too many attachments", InboundMessage{RoomID: "r", Attachments: make([]domain.Attachment, MaxAttachments+1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInbound(tt.in)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidMsg)
			}
		})
	}
}

func TestLanesSerialiseOneKey(t *testing.T) {
	var l lanes
	var mu sync.Mutex
	active := 0
	peak := 0

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.acquire("alice\x00general")
			mu.Lock()
			active++
			peak = max(peak, active)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, peak)
	require.Empty(t, l.m, "released lanes are forgotten")
}

func TestFrames(t *testing.T) {
	t.Run("heartbeat parsing", func(t *testing.T) {
		scope, ok := ParseHeartbeat([]byte("ping"))
		require.True(t, ok)
		require.Empty(t, scope)

		scope, ok = ParseHeartbeat([]byte("ping:room-1"))
		require.True(t, ok)
		require.Equal(t, "room-1", scope)

		for _, s := range []string{"pingx", "pong", `{"type":"ping"}`, ""} {
			_, ok := ParseHeartbeat([]byte(s))
			require.False(t, ok, s)
		}

		require.Equal(t, "pong", string(HeartbeatReply("")))
		require.Equal(t, "pong:room-1", string(HeartbeatReply("room-1")))
	})

	t.Run("code ranges", func(t *testing.T) {
		require.False(t, IsSystemCode(CodeRoomMessage))
		for _, c := range []int{CodePresence, CodeAck, CodeNack, CodeNotice, CodeBadFrame} {
			require.True(t, IsSystemCode(c))
		}
	})

	t.Run("nack keeps the tempId", func(t *testing.T) {
		raw, err := nackFrame("t-9", "general", errors.Join(errors.New("wrapped"), domain.ErrNotMember))
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Equal(t, TypeAck, env.Type)
		require.Equal(t, CodeNack, env.Code)

		var ack AckData
		require.NoError(t, json.Unmarshal(env.Data, &ack))
		require.Equal(t, AckData{TempID: "t-9", RoomID: "general", Error: "not_member"}, ack)
	})

	t.Run("unknown errors are opaque", func(t *testing.T) {
		require.Equal(t, "internal_error", errorCode(errors.New("boom")))
	})
}

func TestMessageStateString(t *testing.T) {
	require.Equal(t, "PERSIST_FAILED", StatePersistFailed.String())
	require.Equal(t, "ACKNOWLEDGED", StateAcknowledged.String())
}
