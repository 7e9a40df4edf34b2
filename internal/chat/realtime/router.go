package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/pkg/idx"
)

const (
	MaxBodyRunes   = 4000
	MaxAttachments = 10
)

// MessageStore persists messages and unread counters.
type MessageStore interface {
	PersistMessage(ctx context.Context, m domain.Message) error
	IncrementUnread(ctx context.Context, userID, roomID string) error
}

// MessageState is where a message is in the router.
type MessageState uint8

const (
	StateReceived MessageState = iota
	StatePersisting
	StateRouting
	StateAcknowledged
	StatePersistFailed
)

func (s MessageState) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StatePersisting:
		return "PERSISTING"
	case StateRouting:
		return "ROUTING"
	case StateAcknowledged:
		return "ACKNOWLEDGED"
	case StatePersistFailed:
		return "PERSIST_FAILED"
	default:
		return "UNKNOWN"
	}
}

// RouteResult reports what happened to one message.
type RouteResult struct {
	Message  domain.Message
	State    MessageState
	Outcomes []DeliveryOutcome

	// Unread lists the members whose counter was bumped.
	Unread []string
}

// lanes serialises messages of one sender into one room, so every
// recipient sees them in acceptance order even when the sender writes
// from several devices at once.
type lanes struct {
	mu sync.Mutex
	m  map[string]*lane
}

type lane struct {
	mu   sync.Mutex
	refs int
}

func (l *lanes) acquire(key string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*lane)
	}
	ln, ok := l.m[key]
	if !ok {
		ln = &lane{}
		l.m[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()
	return func() {
		ln.mu.Unlock()
		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

// Router persists inbound messages and fans them out to the room.
//
// The router makes exactly one routing attempt per received frame. It does
// not deduplicate by tempId: the ack always echoes the tempId so the client
// can collapse its own retries.
type Router struct {
	Rooms    RoomDirectory
	Messages MessageStore
	Registry *Registry
	Logger   *slog.Logger

	Now func() time.Time

	lanes lanes
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Handle routes in for c and answers c with an ack or a negative ack.
func (r *Router) Handle(ctx context.Context, c *Conn, in InboundMessage) {
	l := r.Logger.With(
		slog.String("user_id", c.UserID),
		slog.String("conn_id", c.ID),
		slog.String("room_id", in.RoomID),
		slog.String("temp_id", in.TempID),
	)

	res, err := r.Route(ctx, c.UserID, c, in)
	if err != nil {
		frame, ferr := nackFrame(in.TempID, in.RoomID, err)
		if ferr == nil {
			_ = c.Enqueue(frame)
		}
		if res.State == StatePersistFailed {
			l.Error("message persist failed", slog.Any("error", err))
		} else {
			l.Info("message rejected", slog.String("state", res.State.String()), slog.Any("error", err))
		}
		return
	}

	frame, err := ackFrame(res.Message)
	if err != nil {
		l.Error("encode ack", slog.Any("error", err))
		return
	}
	if err := c.Enqueue(frame); err != nil {
		l.Debug("ack not queued", slog.Any("error", err))
	}
	l.Debug("message routed",
		slog.String("message_id", res.Message.ID),
		slog.Int("recipients", len(res.Outcomes)),
		slog.Int("unread", len(res.Unread)))
}

// Route runs one message through RECEIVED, PERSISTING and ROUTING. skip is
// the sender's own connection, which gets an ack instead of a copy. The
// returned state says how far the message got.
func (r *Router) Route(ctx context.Context, senderID string, skip *Conn, in InboundMessage) (RouteResult, error) {
	res := RouteResult{State: StateReceived}

	in.RoomID = strings.TrimSpace(in.RoomID)
	if err := validateInbound(in); err != nil {
		return res, err
	}

	member, err := r.Rooms.IsMember(ctx, in.RoomID, senderID)
	if err != nil {
		return res, fmt.Errorf("membership: %w", err)
	}
	if !member {
		return res, r.notMember(ctx, in.RoomID)
	}

	release := r.lanes.acquire(senderID + "\x00" + in.RoomID)
	defer release()

	now := r.now()
	msg := domain.Message{
		ID:          idx.NewAt(now).String(),
		RoomID:      in.RoomID,
		SenderID:    senderID,
		Body:        in.Body,
		Attachments: in.Attachments,
		TempID:      in.TempID,
		CreatedAt:   now.UTC(),
	}
	res.Message = msg

	res.State = StatePersisting
	if err := r.Messages.PersistMessage(ctx, msg); err != nil {
		res.State = StatePersistFailed
		return res, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	res.State = StateRouting
	members, err := r.Rooms.MembersOf(ctx, in.RoomID)
	if err != nil {
		// Persisted but undeliverable right now. Clients catch up through
		// history, so this is still acknowledged.
		r.Logger.Error("membership snapshot failed", slog.String("room_id", in.RoomID), slog.Any("error", err))
		res.State = StateAcknowledged
		return res, nil
	}

	frame, err := messageFrame(msg)
	if err != nil {
		return res, err
	}
	res.Outcomes = r.Registry.Broadcast(members, frame, skip)

	for _, out := range res.Outcomes {
		if out.Status == Delivered || out.UserID == senderID {
			continue
		}
		if out.Status == Dropped {
			r.Logger.Warn("delivery failed",
				slog.String("recipient", out.UserID),
				slog.String("room_id", in.RoomID),
				slog.Any("error", out.Err))
		}
		if err := r.Messages.IncrementUnread(ctx, out.UserID, in.RoomID); err != nil {
			r.Logger.Error("increment unread failed",
				slog.String("recipient", out.UserID),
				slog.String("room_id", in.RoomID),
				slog.Any("error", err))
			continue
		}
		res.Unread = append(res.Unread, out.UserID)
	}

	res.State = StateAcknowledged
	return res, nil
}

// notMember tells a room that does not exist apart from one the sender
// is not in.
func (r *Router) notMember(ctx context.Context, roomID string) error {
	if _, err := r.Rooms.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRoomNotFound
		}
		return fmt.Errorf("room: %w", err)
	}
	return domain.ErrNotMember
}

func validateInbound(in InboundMessage) error {
	if in.RoomID == "" {
		return fmt.Errorf("%w: roomId required", ErrInvalidMsg)
	}
	if strings.TrimSpace(in.Body) == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: empty message", ErrInvalidMsg)
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyRunes {
		return fmt.Errorf("%w: body too long", ErrInvalidMsg)
	}
	if len(in.Attachments) > MaxAttachments {
		return fmt.Errorf("%w: too many attachments", ErrInvalidMsg)
	}
	for _, a := range in.Attachments {
		if a.Key == "" {
			return fmt.Errorf("%w: attachment key required", ErrInvalidMsg)
		}
	}
	return nil
}
