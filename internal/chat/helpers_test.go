package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

var errUnreachable = errors.New("connection unreachable")

// recorder is an in-memory Emitter that keeps every envelope per connection.
type recorder struct {
	mu    sync.Mutex
	conns []string
	got   map[string][]chat.Envelope
	fail  map[string]bool
}

func newRecorder() *recorder {
	return &recorder{got: map[string][]chat.Envelope{}, fail: map[string]bool{}}
}

func (r *recorder) Send(connID string, env chat.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[connID] {
		return errUnreachable
	}
	r.got[connID] = append(r.got[connID], env)
	return nil
}

func (r *recorder) Connections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.conns...)
}

func (r *recorder) add(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, connID)
}

func (r *recorder) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.conns {
		if c == connID {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// take returns and clears everything recorded for connID.
func (r *recorder) take(connID string) []chat.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.got[connID]
	delete(r.got, connID)
	return out
}

func eventsOf(envs []chat.Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Event
	}
	return out
}

func find(t *testing.T, envs []chat.Envelope, event string) chat.Envelope {
	t.Helper()
	for _, e := range envs {
		if e.Event == event {
			return e
		}
	}
	require.Failf(t, "event not delivered", "want %q, got %v", event, eventsOf(envs))
	return chat.Envelope{}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	registry *chat.Registry
	sessions *chat.Tracker
	emitter  *recorder
	router   *chat.Router
}

func newHarness(opts ...chat.Option) *harness {
	logger := discardLogger()
	registry := chat.NewRegistry(opts...)
	sessions := chat.NewTracker()
	emitter := newRecorder()
	broadcaster := chat.NewBroadcaster(registry, emitter, logger)
	return &harness{
		registry: registry,
		sessions: sessions,
		emitter:  emitter,
		router:   chat.NewRouter(registry, sessions, emitter, broadcaster, logger),
	}
}

func (h *harness) connect(connID string) {
	h.emitter.add(connID)
	h.router.OnConnect(context.Background(), connID)
}

func (h *harness) disconnect(connID string) {
	h.emitter.remove(connID)
	h.router.OnDisconnect(context.Background(), connID)
}

func (h *harness) send(t *testing.T, connID, event string, data any) {
	t.Helper()
	h.router.Dispatch(context.Background(), connID, frame(t, event, data))
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	in := map[string]any{"event": event}
	if data != nil {
		in["data"] = data
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	return b
}

func inbound(t *testing.T, event string, data any) chat.Inbound {
	t.Helper()
	in, err := chat.DecodeInbound(frame(t, event, data))
	require.NoError(t, err)
	return in
}

func errorText(t *testing.T, envs []chat.Envelope) string {
	t.Helper()
	payload, ok := find(t, envs, chat.EventError).Data.(chat.ErrorPayload)
	require.True(t, ok)
	return payload.Message
}
