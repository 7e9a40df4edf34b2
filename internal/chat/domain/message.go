package domain

import "time"

// Attachment references a blob held elsewhere. The chat core only relays it.
type Attachment struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"roomId"`
	SenderID    string       `json:"senderId"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	TempID      string       `json:"tempId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
