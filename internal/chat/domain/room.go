package domain

import "time"

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomMembership links a user to a room.
type RoomMembership struct {
	RoomID   string    `json:"roomId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// UnreadCounter counts messages a member missed while offline.
type UnreadCounter struct {
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}
