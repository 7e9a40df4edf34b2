package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/store"
	"github.com/aussiebroadwan/barchat/pkg/idx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

const (
	maxRoomNameLen     = 64
	DefaultHistorySize = 50
	MaxHistorySize     = 200
)

// PresenceLookup answers whether a user has a live connection.
type PresenceLookup interface {
	IsOnline(userID string) bool
}

type RoomService struct {
	Store    store.Store
	Presence PresenceLookup

	Now func() time.Time
}

func (s *RoomService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateRoom makes a room with the creator as its first member.
func (s *RoomService) CreateRoom(ctx context.Context, userID, name string) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLen {
		return domain.Room{}, domain.ErrInvalidRoomName
	}

	now := s.now()
	room := domain.Room{
		ID:        idx.New().String(),
		Name:      name,
		CreatedBy: userID,
		CreatedAt: now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Rooms().CreateRoom(ctx, room); err != nil {
			return err
		}
		return tx.Rooms().AddMember(ctx, domain.RoomMembership{RoomID: room.ID, UserID: userID, JoinedAt: now})
	})
	if err != nil {
		return domain.Room{}, err
	}

	slogx.FromContext(ctx).Info("room created", slog.String("room_id", room.ID), slog.String("user_id", userID))
	return room, nil
}

// JoinRoom adds userID to the room. Joining twice is not an error.
func (s *RoomService) JoinRoom(ctx context.Context, userID, roomID string) (domain.Room, error) {
	room, err := s.Store.Rooms().GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, err
	}

	err = s.Store.Rooms().AddMember(ctx, domain.RoomMembership{RoomID: roomID, UserID: userID, JoinedAt: s.now()})
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	if err := s.Store.Rooms().RemoveMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.missing(ctx, roomID)
		}
		return err
	}
	return s.Store.Messages().ResetUnread(ctx, userID, roomID)
}

// MarkRead resets the caller's unread counter for the room.
func (s *RoomService) MarkRead(ctx context.Context, userID, roomID string) error {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return err
	}
	return s.Store.Messages().ResetUnread(ctx, userID, roomID)
}

// History pages backwards through a room, newest first.
func (s *RoomService) History(ctx context.Context, userID, roomID, before string, limit int) ([]domain.Message, error) {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	limit = min(limit, MaxHistorySize)
	return s.Store.Messages().ListMessages(ctx, roomID, before, limit)
}

// InitialState is what a client pulls after connecting: every room it is in,
// the unread count of each, and who of the members is online right now.
func (s *RoomService) InitialState(ctx context.Context, userID string) (domain.InitialState, error) {
	rooms, err := s.Store.Rooms().RoomsOf(ctx, userID)
	if err != nil {
		return domain.InitialState{}, err
	}
	unread, err := s.Store.Messages().UnreadCounts(ctx, userID)
	if err != nil {
		return domain.InitialState{}, err
	}

	state := domain.InitialState{UserID: userID, Rooms: make([]domain.RoomState, 0, len(rooms))}
	users := map[string]domain.User{}

	for _, room := range rooms {
		members, err := s.Store.Rooms().MembersOf(ctx, room.ID)
		if err != nil {
			return domain.InitialState{}, err
		}

		var missing []string
		for _, id := range members {
			if _, ok := users[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			found, err := s.Store.Users().GetUsersByIDs(ctx, missing)
			if err != nil {
				return domain.InitialState{}, err
			}
			for _, u := range found {
				users[u.ID] = u
			}
		}

		rs := domain.RoomState{Room: room, Unread: unread[room.ID], Members: make([]domain.MemberState, 0, len(members))}
		for _, id := range members {
			u := users[id]
			rs.Members = append(rs.Members, domain.MemberState{
				UserID:        id,
				Username:      u.Username,
				PreferredName: u.PreferredName,
				Online:        s.Presence != nil && s.Presence.IsOnline(id),
			})
		}
		state.Rooms = append(state.Rooms, rs)
	}

	return state, nil
}

func (s *RoomService) requireMember(ctx context.Context, userID, roomID string) error {
	ok, err := s.Store.Rooms().IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return s.missing(ctx, roomID)
	}
	return nil
}

// missing tells "no such room" apart from "not yours".
func (s *RoomService) missing(ctx context.Context, roomID string) error {
	if _, err := s.Store.Rooms().GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	return domain.ErrNotMember
}
