package chat

import "errors"

// Sentinel errors returned by validators and registry operations. They are
// recovered at the Router boundary and surfaced to the originating connection
// as an error event.
var (
	// ErrInvalidRoomName is returned when a room name fails validation.
	ErrInvalidRoomName = errors.New("invalid room name")

	// ErrInvalidNickname is returned when a nickname fails validation.
	ErrInvalidNickname = errors.New("invalid nickname")

	// ErrInvalidMessage is returned when message text fails validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrRoomNotFound is returned when an operation references an unknown room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrInternal wraps any unexpected fault recovered while handling an event.
	ErrInternal = errors.New("internal failure")

	// ErrUnknownEvent is returned for inbound event names the router does not handle.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedFrame is returned when an inbound frame is not a JSON envelope.
	ErrMalformedFrame = errors.New("malformed event")
)

// ErrorMessage maps err to the human-readable text carried by an error event.
// Errors outside the taxonomy fall back to a generic failure for the event
// that caused them.
func ErrorMessage(event string, err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoomName):
		return "Invalid room name"
	case errors.Is(err, ErrInvalidNickname):
		return "Invalid nickname"
	case errors.Is(err, ErrInvalidMessage):
		return "Invalid message"
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown event"
	case errors.Is(err, ErrMalformedFrame):
		return "Malformed event"
	}

	switch event {
	case EventRoomCreate:
		return "Could not create room"
	case EventRoomJoin:
		return "Could not join room"
	case EventMessageSend:
		return "Could not send message"
	case EventRoomList:
		return "Could not list rooms"
	default:
		return "Something went wrong"
	}
}
