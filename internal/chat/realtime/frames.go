package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/domain"
)

// FrameType discriminates the JSON envelope.
type FrameType string

const (
	TypeMessage  FrameType = "message"
	TypePresence FrameType = "presence"
	TypeAck      FrameType = "ack"
	TypeNotice   FrameType = "notice"
)

// Envelope codes. Below 2000 are user messages, 2000 and up are system frames.
const (
	CodeRoomMessage = 1001

	CodePresence = 2001
	CodeAck      = 2002
	CodeNack     = 2003
	CodeNotice   = 2004
	CodeBadFrame = 2005
)

// IsSystemCode reports whether code is in the system range.
func IsSystemCode(code int) bool { return code >= 2000 }

var (
	ErrBadFrame      = errors.New("bad_frame")
	ErrInvalidMsg    = errors.New("invalid_message")
	ErrPersistFailed = errors.New("persist_failed")
	ErrRateLimited   = errors.New("rate_limited")
	ErrQueueFull     = errors.New("queue_full")
	ErrConnClosed    = errors.New("connection_closed")
)

// Envelope is every JSON frame on the socket, in both directions.
type Envelope struct {
	Type FrameType       `json:"type"`
	Code int             `json:"code,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundMessage is what a client sends to post into a room.
type InboundMessage struct {
	RoomID      string              `json:"roomId"`
	Body        string              `json:"body"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	TempID      string              `json:"tempId,omitempty"`
}

// AckData answers an InboundMessage. Error is set on a negative ack.
type AckData struct {
	TempID    string    `json:"tempId"`
	MessageID string    `json:"messageId,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Error     string    `json:"error,omitempty"`
}

type NoticeData struct {
	Message string `json:"message"`
}

// EncodeFrame marshals data into an envelope.
func EncodeFrame(typ FrameType, code int, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Code: code, Data: raw})
}

func messageFrame(m domain.Message) ([]byte, error) {
	return EncodeFrame(TypeMessage, CodeRoomMessage, m)
}

func presenceFrame(ev domain.PresenceEvent) ([]byte, error) {
	return EncodeFrame(TypePresence, CodePresence, ev)
}

func ackFrame(m domain.Message) ([]byte, error) {
	return EncodeFrame(TypeAck, CodeAck, AckData{
		TempID:    m.TempID,
		MessageID: m.ID,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
	})
}

func nackFrame(tempID, roomID string, err error) ([]byte, error) {
	return EncodeFrame(TypeAck, CodeNack, AckData{TempID: tempID, RoomID: roomID, Error: errorCode(err)})
}

func noticeFrame(code int, msg string) ([]byte, error) {
	return EncodeFrame(TypeNotice, code, NoticeData{Message: msg})
}

// errorCode reduces err to the wire code of the first known sentinel.
func errorCode(err error) string {
	for _, known := range []error{
		domain.ErrNotMember,
		domain.ErrRoomNotFound,
		ErrInvalidMsg,
		ErrPersistFailed,
		ErrRateLimited,
		ErrBadFrame,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}

// Heartbeat sentinels. They travel as plain text frames so they can never
// be mistaken for an envelope.
const (
	HeartbeatPing = "ping"
	HeartbeatPong = "pong"
)

// ParseHeartbeat recognises "ping" and "ping:<scope>".
func ParseHeartbeat(b []byte) (scope string, ok bool) {
	if !bytes.HasPrefix(b, []byte(HeartbeatPing)) {
		return "", false
	}
	rest := b[len(HeartbeatPing):]
	switch {
	case len(rest) == 0:
		return "", true
	case rest[0] == ':':
		return string(rest[1:]), true
	default:
		return "", false
	}
}

// HeartbeatReply echoes the scope of a ping.
func HeartbeatReply(scope string) []byte {
	if scope == "" {
		return []byte(HeartbeatPong)
	}
	return []byte(HeartbeatPong + ":" + scope)
}
