package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
	"github.com/aussiebroadwan/barchat/pkg/httpx"
	"github.com/aussiebroadwan/barchat/pkg/slogx"
)

// RoomsHandler serves room membership, history and the initial state pull.
type RoomsHandler struct {
	RoomService *service.RoomService
}

// HandleCreate godoc
//
//	@Summary		Create Room
//	@Description	Creates a room with the caller as its first member. Needs the rooms:manage scope, which guests never have.
//	@Tags			Rooms
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		chatsdk.CreateRoomRequest	true	"Room name"
//	@Success		201		{object}	chatsdk.Room
//	@Failure		400		{object}	chatsdk.APIError	"error, error_description"
//	@Failure		401		{object}	chatsdk.APIError	"error, error_description"
//	@Failure		403		{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/rooms [post].
func (h *RoomsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatsdk.CreateRoomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		chatsdk.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
		return
	}

	room, err := h.RoomService.CreateRoom(ctx, httpx.UserID(ctx), req.Name)
	if err != nil {
		writeRoomError(w, r, "create room", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, room)
}

// HandleJoin godoc
//
//	@Summary		Join Room
//	@Description	Adds the caller to the room. Joining a room twice is not an error.
//	@Tags			Rooms
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Room ID"
//	@Success		200	{object}	chatsdk.Room
//	@Failure		401	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		404	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/rooms/{id}/join [post].
func (h *RoomsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	room, err := h.RoomService.JoinRoom(ctx, httpx.UserID(ctx), r.PathValue("id"))
	if err != nil {
		writeRoomError(w, r, "join room", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, room)
}

// HandleLeave godoc
//
//	@Summary		Leave Room
//	@Tags			Rooms
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Room ID"
//	@Success		204
//	@Failure		403	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		404	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/rooms/{id}/leave [post].
func (h *RoomsHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.RoomService.LeaveRoom(ctx, httpx.UserID(ctx), r.PathValue("id")); err != nil {
		writeRoomError(w, r, "leave room", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRead godoc
//
//	@Summary		Mark Room Read
//	@Description	Resets the caller's unread counter for the room.
//	@Tags			Rooms
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Room ID"
//	@Success		204
//	@Failure		403	{object}	chatsdk.APIError	"error, error_description"
//	@Failure		404	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/rooms/{id}/read [post].
func (h *RoomsHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.RoomService.MarkRead(ctx, httpx.UserID(ctx), r.PathValue("id")); err != nil {
		writeRoomError(w, r, "mark read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory godoc
//
//	@Summary		Room History
//	@Description	Pages backwards through a room, newest first. Pass the oldest message ID seen as before to get the next page.
//	@Tags			Rooms
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"Room ID"
//	@Param			before	query		string	false	"Only messages older than this message ID"
//	@Param			limit	query		int		false	"Page size, default 50, max 200"
//	@Success		200		{object}	chatsdk.MessagesResponse
//	@Failure		400		{object}	chatsdk.APIError	"error, error_description"
//	@Failure		403		{object}	chatsdk.APIError	"error, error_description"
//	@Failure		404		{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/rooms/{id}/messages [get].
func (h *RoomsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			chatsdk.ErrInvalidRequest.WithDescription("limit must be a positive integer").WriteError(w)
			return
		}
		limit = n
	}

	msgs, err := h.RoomService.History(ctx, httpx.UserID(ctx), r.PathValue("id"), q.Get("before"), limit)
	if err != nil {
		writeRoomError(w, r, "history", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	httpx.WriteJSON(w, http.StatusOK, struct {
		Messages []domain.Message `json:"messages"`
	}{msgs})
}

// HandleState godoc
//
//	@Summary		Initial State
//	@Description	Every room of the caller with its unread count and which members are online. Clients pull this after each (re)connect.
//	@Tags			Rooms
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	chatsdk.InitialState
//	@Failure		401	{object}	chatsdk.APIError	"error, error_description"
//	@Router			/v1/state [get].
func (h *RoomsHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := h.RoomService.InitialState(ctx, httpx.UserID(ctx))
	if err != nil {
		writeRoomError(w, r, "initial state", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, state)
}

func writeRoomError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		chatsdk.ErrRoomNotFound.WriteError(w)
	case errors.Is(err, domain.ErrNotMember):
		chatsdk.ErrNotMember.WriteError(w)
	case errors.Is(err, domain.ErrInvalidRoomName):
		chatsdk.ErrInvalidRoomName.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error(op+" failed", "err", err)
		chatsdk.ErrServerError.WriteError(w)
	}
}
