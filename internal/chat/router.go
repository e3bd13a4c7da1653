package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Tyrowin/roomchat/internal/chat"

// Delivery is one outbound event with its resolved audience. When Everyone
// is set the event goes to every connected session and To is ignored.
type Delivery struct {
	To       []string
	Everyone bool
	Event    string
	Data     any
}

// EventHook observes every handled inbound event. status is "ok",
// "rejected" or "failed".
type EventHook func(event, status string)

// Router is the protocol state machine. It holds no business data of its
// own: every handler validates input, mutates the Registry and Tracker, and
// describes the resulting fan-out as a list of deliveries.
type Router struct {
	registry    *Registry
	sessions    *Tracker
	emitter     Emitter
	broadcaster *Broadcaster
	logger      *slog.Logger
	tracer      trace.Tracer
	hook        EventHook
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEventHook installs a hook called once per handled inbound event.
func WithEventHook(hook EventHook) RouterOption {
	return func(r *Router) {
		r.hook = hook
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) RouterOption {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// NewRouter wires a Router to its collaborators.
func NewRouter(registry *Registry, sessions *Tracker, emitter Emitter, broadcaster *Broadcaster, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry:    registry,
		sessions:    sessions,
		emitter:     emitter,
		broadcaster: broadcaster,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		hook:        func(string, string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnConnect opens a session for connID and sends it the current room list.
func (r *Router) OnConnect(ctx context.Context, connID string) {
	r.broadcaster.Sequence(func() {
		r.Deliver(ctx, r.Connect(connID))
	})
}

// OnDisconnect tears down the session for connID and notifies its room.
// Redundant calls do nothing.
func (r *Router) OnDisconnect(ctx context.Context, connID string) {
	r.broadcaster.Sequence(func() {
		r.Deliver(ctx, r.Disconnect(connID))
	})
}

// Dispatch decodes one client frame, handles it and delivers the result.
// Handling and delivery hold the fan-out lock together.
func (r *Router) Dispatch(ctx context.Context, connID string, frame []byte) {
	in, err := DecodeInbound(frame)
	if err != nil {
		r.logger.Debug("Rejected malformed frame", "conn", connID, "error", err)
		r.hook("", "rejected")
		r.Deliver(ctx, r.reject(connID, "", err))
		return
	}
	r.broadcaster.Sequence(func() {
		r.Deliver(ctx, r.Handle(ctx, connID, in))
	})
}

// Deliver sends each delivery through the Emitter. Room-wide and global
// sends are best effort: a failed recipient is logged and skipped. Callers
// that mutate state in Handle should deliver inside Broadcaster.Sequence.
func (r *Router) Deliver(ctx context.Context, deliveries []Delivery) {
	for _, d := range deliveries {
		if d.Everyone {
			r.broadcaster.Publish(ctx, d.Event, d.Data)
			continue
		}
		env := Envelope{Event: d.Event, Data: d.Data}
		for _, connID := range d.To {
			if err := r.emitter.Send(connID, env); err != nil {
				r.logger.Debug("Delivery failed", "conn", connID, "event", d.Event, "error", err)
			}
		}
	}
}

// Connect registers a fresh session and returns the initial room list for it.
func (r *Router) Connect(connID string) []Delivery {
	r.sessions.OnConnect(connID)
	return []Delivery{r.toCaller(connID, EventRoomList, r.registry.ListRooms())}
}

// Disconnect removes the session, leaves its room and returns the departure
// notice for the remaining members plus a fresh room list.
func (r *Router) Disconnect(connID string) (out []Delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Disconnect cleanup panicked", "conn", connID, "panic", rec)
			out = nil
		}
	}()

	session, ok := r.sessions.OnDisconnect(connID)
	if !ok || session.CurrentRoomID == "" {
		return nil
	}
	nickname, left := r.registry.LeaveRoom(session.CurrentRoomID, connID)
	if !left {
		return nil
	}
	r.logger.Info("Member disconnected", "conn", connID, "room", session.CurrentRoomID)
	return append(r.departureNotice(Departure{RoomID: session.CurrentRoomID, Nickname: nickname}, connID), r.roomList())
}

// Handle runs the handler for one inbound event and returns the deliveries
// it produced. Handler failures, including panics, become a scoped error for
// connID. Typing events never produce errors.
func (r *Router) Handle(ctx context.Context, connID string, in Inbound) (out []Delivery) {
	_, span := r.tracer.Start(ctx, in.Event, trace.WithAttributes(
		attribute.String("chat.connection_id", connID),
		attribute.String("chat.event", in.Event),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrInternal, rec)
			r.logger.Error("Event handler panicked", "conn", connID, "event", in.Event, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.hook(in.Event, "failed")
			if in.Event == EventMessageTyping {
				out = nil
				return
			}
			out = r.reject(connID, in.Event, err)
		}
	}()

	out, err := r.route(connID, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		status := "rejected"
		if !isClientError(err) {
			status = "failed"
			r.logger.Error("Event handler failed", "conn", connID, "event", in.Event, "error", err)
		} else {
			r.logger.Debug("Event rejected", "conn", connID, "event", in.Event, "error", err)
		}
		r.hook(in.Event, status)
		return r.reject(connID, in.Event, err)
	}
	r.hook(in.Event, "ok")
	return out
}

func (r *Router) route(connID string, in Inbound) ([]Delivery, error) {
	switch in.Event {
	case EventRoomList:
		return []Delivery{r.toCaller(connID, EventRoomList, r.registry.ListRooms())}, nil
	case EventRoomCreate:
		var req CreateRoomRequest
		decodeData(in.Data, &req)
		return r.createRoom(connID, req)
	case EventRoomJoin:
		var req JoinRoomRequest
		decodeData(in.Data, &req)
		return r.joinRoom(connID, req)
	case EventMessageSend:
		var req SendMessageRequest
		decodeData(in.Data, &req)
		return r.sendMessage(connID, req)
	case EventMessageTyping:
		var req TypingRequest
		decodeData(in.Data, &req)
		return r.typing(connID, req), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
	}
}

func (r *Router) createRoom(connID string, req CreateRoomRequest) ([]Delivery, error) {
	name, err := ValidateRoomName(req.Name)
	if err != nil {
		return nil, err
	}
	nickname, err := ValidateNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	info, departed := r.registry.CreateRoom(name, connID, nickname)
	r.sessions.SetNickname(connID, nickname)
	r.sessions.SetCurrentRoom(connID, info.ID)
	r.logger.Info("Room created", "conn", connID, "room", info.ID, "name", name)

	out := r.departureNotice(departed, connID)
	out = append(out, r.toCaller(connID, EventRoomCreated, RoomCreated{Room: info}))
	if peers := r.peers(info.ID, connID); len(peers) > 0 {
		out = append(out, Delivery{To: peers, Event: EventUserJoined, Data: MemberNotice{ConnectionID: connID, Nickname: nickname}})
	}
	return append(out, r.roomList()), nil
}

func (r *Router) joinRoom(connID string, req JoinRoomRequest) ([]Delivery, error) {
	nickname, err := ValidateNickname(req.Nickname)
	if err != nil {
		return nil, err
	}
	id := RoomID(asString(req.RoomID))
	if id == "" {
		return nil, fmt.Errorf("join: %w", ErrRoomNotFound)
	}

	snapshot, departed, err := r.registry.JoinRoom(id, connID, nickname)
	if err != nil {
		return nil, err
	}
	r.sessions.SetNickname(connID, nickname)
	r.sessions.SetCurrentRoom(connID, id)
	r.logger.Info("Member joined", "conn", connID, "room", id, "members", snapshot.UserCount)

	out := r.departureNotice(departed, connID)
	out = append(out, r.toCaller(connID, EventRoomState, snapshot))
	if peers := r.peers(id, connID); len(peers) > 0 {
		out = append(out, Delivery{To: peers, Event: EventUserJoined, Data: MemberNotice{ConnectionID: connID, Nickname: nickname}})
	}
	return append(out, r.roomList()), nil
}

func (r *Router) sendMessage(connID string, req SendMessageRequest) ([]Delivery, error) {
	text, err := ValidateMessageText(req.Text)
	if err != nil {
		return nil, err
	}
	id := RoomID(asString(req.RoomID))
	if id == "" {
		session, _ := r.sessions.Get(connID)
		id = session.CurrentRoomID
	}
	if id == "" {
		return nil, fmt.Errorf("send: %w", ErrRoomNotFound)
	}

	msg, err := r.registry.AppendMessage(id, connID, text)
	if err != nil {
		return nil, err
	}
	return []Delivery{{To: r.registry.RoomMembers(id), Event: EventMessageNew, Data: msg}}, nil
}

// typing always targets the sender's current room. A payload naming any
// other room is dropped.
func (r *Router) typing(connID string, req TypingRequest) []Delivery {
	session, ok := r.sessions.Get(connID)
	if !ok || session.CurrentRoomID == "" {
		return nil
	}
	if requested := RoomID(asString(req.RoomID)); requested != "" && requested != session.CurrentRoomID {
		return nil
	}
	peers := r.peers(session.CurrentRoomID, connID)
	if len(peers) == 0 {
		return nil
	}
	nickname := session.Nickname
	if nickname == "" {
		nickname = DefaultNickname
	}
	return []Delivery{{
		To:    peers,
		Event: EventMessageTyping,
		Data:  TypingNotice{ConnectionID: connID, Nickname: nickname, Typing: truthy(req.Typing)},
	}}
}

func (r *Router) departureNotice(d Departure, connID string) []Delivery {
	if d.RoomID == "" {
		return nil
	}
	peers := r.peers(d.RoomID, connID)
	if len(peers) == 0 {
		return nil
	}
	return []Delivery{{To: peers, Event: EventUserLeft, Data: MemberNotice{ConnectionID: connID, Nickname: d.Nickname}}}
}

func (r *Router) peers(id RoomID, connID string) []string {
	return lo.Without(r.registry.RoomMembers(id), connID)
}

func (r *Router) roomList() Delivery {
	return Delivery{Everyone: true, Event: EventRoomList, Data: r.registry.ListRooms()}
}

func (r *Router) toCaller(connID, event string, data any) Delivery {
	return Delivery{To: []string{connID}, Event: event, Data: data}
}

func (r *Router) reject(connID, event string, err error) []Delivery {
	if event == EventMessageTyping {
		return nil
	}
	return []Delivery{r.toCaller(connID, EventError, ErrorPayload{Message: ErrorMessage(event, err)})}
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidRoomName, ErrInvalidNickname, ErrInvalidMessage,
		ErrRoomNotFound, ErrUnknownEvent, ErrMalformedFrame,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
