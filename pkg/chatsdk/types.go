package chatsdk

import (
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/barchat/pkg/jwtx"
)

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned by the token, guest and refresh endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`

	// RefreshToken stays the same across refreshes of one session.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	Scope string `json:"scope,omitempty"`

	// UserID is needed for refresh and for the socket handshake.
	UserID string `json:"user_id"`

	Guest bool `json:"guest,omitempty"`
}

// RegisterResponse is returned from POST /v1/auth/register.
type RegisterResponse struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	PreferredName string `json:"preferred_name,omitempty"`
}

// ============================================================================
// Room Types
// ============================================================================

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRoomRequest is the body of POST /v1/rooms.
type CreateRoomRequest struct {
	Name string `json:"name" example:"general"`
}

// Attachment is an opaque reference relayed with a message.
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

// MessagesResponse is one page of history, newest first.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

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

// InitialState is what GET /v1/state returns after a (re)connect.
type InitialState struct {
	UserID string      `json:"userId"`
	Rooms  []RoomState `json:"rooms"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Hub      string `json:"hub"`
}

// JWKSResponse is the key set served at /.well-known/jwks.json.
type JWKSResponse struct {
	Keys []jwtx.JWK `json:"keys"`
}

// ============================================================================
// Socket Frames
// ============================================================================

const (
	FrameMessage  = "message"
	FramePresence = "presence"
	FrameAck      = "ack"
	FrameNotice   = "notice"
)

// Frame codes. Codes of 2000 and above are system frames.
const (
	CodeRoomMessage = 1001
	CodePresence    = 2001
	CodeAck         = 2002
	CodeNack        = 2003
	CodeNotice      = 2004
	CodeBadFrame    = 2005
)

// Close codes the server uses.
const (
	CloseInvalidToken = 4001
	CloseTokenExpired = 4002
	CloseSlowConsumer = 4008
)

// Frame is one server-to-client envelope. Decode Data with the matching
// helper once Code is known.
type Frame struct {
	Type string          `json:"type"`
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage is what a client sends into a room. TempID comes back on
// the ack so the client can match it with its optimistic copy.
type OutboundMessage struct {
	RoomID      string       `json:"roomId"`
	Body        string       `json:"body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	TempID      string       `json:"tempId,omitempty"`
}

// Ack answers an OutboundMessage. Error is set on a negative ack.
type Ack struct {
	TempID    string    `json:"tempId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	RoomID    string    `json:"roomId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Error     string    `json:"error,omitempty"`
}

type Presence struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type Notice struct {
	Message string `json:"message"`
}

// Message decodes a CodeRoomMessage frame.
func (f Frame) Message() (Message, error) {
	var m Message
	err := json.Unmarshal(f.Data, &m)
	return m, err
}

// Ack decodes a CodeAck or CodeNack frame.
func (f Frame) Ack() (Ack, error) {
	var a Ack
	err := json.Unmarshal(f.Data, &a)
	return a, err
}

// Presence decodes a CodePresence frame.
func (f Frame) Presence() (Presence, error) {
	var p Presence
	err := json.Unmarshal(f.Data, &p)
	return p, err
}

// Notice decodes a CodeNotice or CodeBadFrame frame.
func (f Frame) Notice() (Notice, error) {
	var n Notice
	err := json.Unmarshal(f.Data, &n)
	return n, err
}
