package domain

// MemberState is a room member as seen by the initial state pull.
type MemberState struct {
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	PreferredName string `json:"preferredName,omitempty"`
	Online        bool   `json:"online"`
}

type RoomState struct {
	Room    Room          `json:"room"`
	Unread  int64         `json:"unread"`
	Members []MemberState `json:"members"`
}

// InitialState is what a client pulls after (re)connecting to catch up on
// anything its socket missed.
type InitialState struct {
	UserID string      `json:"userId"`
	Rooms  []RoomState `json:"rooms"`
}
