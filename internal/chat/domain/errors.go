package domain

import "errors"

// Business errors shared by the REST surface and the socket router. Both map
// them to a response instead of failing the connection.
var (
	ErrRoomNotFound    = errors.New("room_not_found")
	ErrNotMember       = errors.New("not_member")
	ErrInvalidRoomName = errors.New("invalid_room_name")
)
