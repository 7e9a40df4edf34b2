package domain

import "time"

// PresenceEvent is an online/offline transition for one user. Never stored.
type PresenceEvent struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}
