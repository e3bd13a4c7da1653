package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	// HistoryLimit is the number of messages retained per room.
	HistoryLimit = 500
	// SnapshotLimit is the number of recent messages sent to a joining member.
	SnapshotLimit = 50
	// DefaultNickname is used for senders with no membership record.
	DefaultNickname = "Anonymous"
)

// RoomID identifies a room for the lifetime of the process.
type RoomID string

// Message is a single chat line. It is immutable once stored.
type Message struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// RoomSummary is the derived view of a room shown in room lists.
// LastMessageAt is nil until the room has history.
type RoomSummary struct {
	ID            RoomID `json:"id"`
	Name          string `json:"name"`
	UserCount     int    `json:"userCount"`
	LastMessageAt *int64 `json:"lastMessageAt"`
}

// RoomSnapshot is the state handed to a member on join.
type RoomSnapshot struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"userCount"`
	Messages  []Message `json:"messages"`
}

// Departure records a membership that was removed as a side effect of a
// create or join. The zero value means nothing was left.
type Departure struct {
	RoomID   RoomID
	Nickname string
}

type room struct {
	id         RoomID
	name       string
	members    map[string]string // connection id -> nickname
	history    *history
	emptySince time.Time
}

func (rm *room) summary() RoomSummary {
	s := RoomSummary{ID: rm.id, Name: rm.name, UserCount: len(rm.members)}
	if last, ok := rm.history.last(); ok {
		s.LastMessageAt = lo.ToPtr(last.Timestamp)
	}
	return s
}

// Registry owns every room and the connection -> room membership index.
// Each operation runs under a single registry lock, so operations on the same
// room never interleave and a connection is a member of at most one room.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[RoomID]*room
	memberOf map[string]RoomID
	newID    IDGenerator
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides the room and message id source.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithClock overrides the time source used for message timestamps and reaping.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:    make(map[RoomID]*room),
		memberOf: make(map[string]RoomID),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newID == nil {
		r.newID = MustIDGenerator()
	}
	return r
}

// CreateRoom allocates a room with connID as its sole member. If connID was
// a member of another room it leaves that room first and the returned
// Departure names it.
func (r *Registry) CreateRoom(name, connID, nickname string) (RoomInfo, Departure) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := RoomID(r.newID())
	for r.rooms[id] != nil {
		id = RoomID(r.newID())
	}

	departed := r.detach(connID)
	r.rooms[id] = &room{
		id:      id,
		name:    name,
		members: map[string]string{connID: nickname},
		history: newHistory(HistoryLimit),
	}
	r.memberOf[connID] = id

	return RoomInfo{ID: id, Name: name, UserCount: 1}, departed
}

// JoinRoom adds connID to the room under nickname and returns a snapshot with
// the newest SnapshotLimit messages. Membership of any other room is dropped
// first. Joining the room the connection is already in only refreshes the
// nickname.
func (r *Registry) JoinRoom(id RoomID, connID, nickname string) (RoomSnapshot, Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return RoomSnapshot{}, Departure{}, fmt.Errorf("join %q: %w", id, ErrRoomNotFound)
	}

	var departed Departure
	if r.memberOf[connID] != id {
		departed = r.detach(connID)
	}
	rm.members[connID] = nickname
	rm.emptySince = time.Time{}
	r.memberOf[connID] = id

	return RoomSnapshot{
		ID:        rm.id,
		Name:      rm.name,
		UserCount: len(rm.members),
		Messages:  rm.history.tail(SnapshotLimit),
	}, departed, nil
}

// LeaveRoom removes connID from the room and returns the nickname it had.
// Unknown rooms and non-members are a no-op, so repeated cleanup is safe.
func (r *Registry) LeaveRoom(id RoomID, connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return "", false
	}
	nickname, ok := rm.members[connID]
	if !ok {
		return "", false
	}
	r.remove(rm, connID)
	return nickname, true
}

// AppendMessage stores text in the room's history under the sender's member
// nickname, evicting the oldest message beyond HistoryLimit.
func (r *Registry) AppendMessage(id RoomID, connID, text string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return Message{}, fmt.Errorf("append to %q: %w", id, ErrRoomNotFound)
	}

	nickname, ok := rm.members[connID]
	if !ok {
		nickname = DefaultNickname
	}
	msg := Message{
		ID:        r.newID(),
		Nickname:  nickname,
		Text:      text,
		Timestamp: r.now().UnixMilli(),
	}
	rm.history.push(msg)
	return msg, nil
}

// ListRooms returns a summary of every room in no particular order.
func (r *Registry) ListRooms() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.rooms, func(_ RoomID, rm *room) RoomSummary {
		return rm.summary()
	})
}

// Room returns the summary of a single room.
func (r *Registry) Room(id RoomID) (RoomSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[id]
	if !ok {
		return RoomSummary{}, false
	}
	return rm.summary(), true
}

// RoomMembers returns the connection ids currently in the room, or nil for an
// unknown room.
func (r *Registry) RoomMembers(id RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[id]
	if !ok {
		return nil
	}
	return lo.Keys(rm.members)
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Reap deletes rooms that have had no members for at least ttl and returns
// their ids.
func (r *Registry) Reap(ttl time.Duration) []RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var reaped []RoomID
	for id, rm := range r.rooms {
		if len(rm.members) > 0 || rm.emptySince.IsZero() {
			continue
		}
		if now.Sub(rm.emptySince) >= ttl {
			delete(r.rooms, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// detach drops connID from whichever room it is in. Callers hold r.mu.
func (r *Registry) detach(connID string) Departure {
	id, ok := r.memberOf[connID]
	if !ok {
		return Departure{}
	}
	rm, ok := r.rooms[id]
	if !ok {
		delete(r.memberOf, connID)
		return Departure{}
	}
	nickname := rm.members[connID]
	r.remove(rm, connID)
	return Departure{RoomID: id, Nickname: nickname}
}

// remove deletes a member and stamps the time the room became empty.
// Callers hold r.mu.
func (r *Registry) remove(rm *room, connID string) {
	delete(rm.members, connID)
	if r.memberOf[connID] == rm.id {
		delete(r.memberOf, connID)
	}
	if len(rm.members) == 0 {
		rm.emptySince = r.now()
	}
}
