package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventRoomList      = "room:list"
	EventRoomCreate    = "room:create"
	EventRoomJoin      = "room:join"
	EventMessageSend   = "message:send"
	EventMessageTyping = "message:typing"
)

// Outbound event names. EventRoomList and EventMessageTyping are used in both
// directions.
const (
	EventRoomCreated = "room:created"
	EventRoomState   = "room:state"
	EventUserJoined  = "room:user-joined"
	EventUserLeft    = "room:user-left"
	EventMessageNew  = "message:new"
	EventError       = "error"
)

// Inbound is a decoded client frame. Data is left raw so each handler can
// decode its own payload shape.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an outbound frame.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(frame []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if in.Event == "" {
		return Inbound{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return in, nil
}

// Request payloads keep their fields untyped: a number where a string is
// expected must be rejected by validation, not by the decoder.

// CreateRoomRequest is the payload of room:create.
type CreateRoomRequest struct {
	Name     any `json:"name"`
	Nickname any `json:"nickname"`
}

// JoinRoomRequest is the payload of room:join.
type JoinRoomRequest struct {
	RoomID   any `json:"roomId"`
	Nickname any `json:"nickname"`
}

// SendMessageRequest is the payload of message:send.
type SendMessageRequest struct {
	RoomID any `json:"roomId"`
	Text   any `json:"text"`
}

// TypingRequest is the payload of inbound message:typing.
type TypingRequest struct {
	RoomID any `json:"roomId"`
	Typing any `json:"typing"`
}

// RoomInfo describes a room in room:created.
type RoomInfo struct {
	ID        RoomID `json:"id"`
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// RoomCreated is the payload of room:created.
type RoomCreated struct {
	Room RoomInfo `json:"room"`
}

// MemberNotice is the payload of room:user-joined and room:user-left.
type MemberNotice struct {
	ConnectionID string `json:"socketId"`
	Nickname     string `json:"nickname"`
}

// TypingNotice is the payload of outbound message:typing.
type TypingNotice struct {
	ConnectionID string `json:"socketId"`
	Nickname     string `json:"nickname"`
	Typing       bool   `json:"typing"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// decodeData fills v from raw. Absent, null or mistyped payloads leave v at
// its zero value so validation rejects it.
func decodeData(raw json.RawMessage, v any) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	_ = json.Unmarshal(raw, v)
}

// asString returns v when it is a string and "" otherwise.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truthy follows the loose boolean coercion clients rely on for the typing
// flag: false, 0, "" and null are false, everything else is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
