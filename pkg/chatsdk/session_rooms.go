package chatsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateRoom creates a room with the caller as its only member. Guests are
// refused with a 403 insufficient_scope.
func (s *Session) CreateRoom(ctx context.Context, name string) (*Room, error) {
	body, err := json.Marshal(CreateRoomRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/rooms", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var room Room
	if err := decodeJSON(resp, &room, http.StatusCreated); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Session) JoinRoom(ctx context.Context, roomID string) (*Room, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/join", nil, nil)
	if err != nil {
		return nil, err
	}

	var room Room
	if err := decodeJSON(resp, &room, http.StatusOK); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Session) LeaveRoom(ctx context.Context, roomID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/leave", nil, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// MarkRead resets the unread counter of a room.
func (s *Session) MarkRead(ctx context.Context, roomID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/read", nil, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// History returns up to limit messages older than before, newest first.
// Empty before starts from the latest message, zero limit uses the server
// default.
func (s *Session) History(ctx context.Context, roomID, before string, limit int) ([]Message, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/v1/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var page MessagesResponse
	if err := decodeJSON(resp, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return page.Messages, nil
}
