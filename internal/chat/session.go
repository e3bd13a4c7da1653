package chat

import "sync"

// Session is the ephemeral state of one live connection. Empty Nickname or
// CurrentRoomID means the value has not been set yet.
type Session struct {
	ConnectionID  string
	Nickname      string
	CurrentRoomID RoomID
}

// Tracker is the single owner of every live Session.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

// OnConnect creates an empty session for connID, replacing any stale one.
func (t *Tracker) OnConnect(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[connID] = &Session{ConnectionID: connID}
}

// SetNickname records the nickname chosen by connID.
func (t *Tracker) SetNickname(connID, nickname string) {
	t.update(connID, func(s *Session) { s.Nickname = nickname })
}

// SetCurrentRoom records the room connID is in. An empty id clears it.
func (t *Tracker) SetCurrentRoom(connID string, id RoomID) {
	t.update(connID, func(s *Session) { s.CurrentRoomID = id })
}

// Get returns a copy of the session for connID.
func (t *Tracker) Get(connID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// OnDisconnect removes and returns the session for connID. Only the first
// call for a connection reports ok.
func (t *Tracker) OnDisconnect(connID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(t.sessions, connID)
	return *s, true
}

// Len returns the number of live sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) update(connID string, fn func(*Session)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[connID]; ok {
		fn(s)
	}
}
