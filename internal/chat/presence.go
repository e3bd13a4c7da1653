package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Broadcaster pushes events to every connected session. A failure to reach
// one connection is logged and never stops delivery to the rest.
//
// Broadcaster also owns the fan-out lock. A registry mutation, the snapshots
// taken from it and the sends that carry them run as one unit under Sequence,
// so recipients observe changes in the order the registry applied them.
type Broadcaster struct {
	registry *Registry
	emitter  Emitter
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewBroadcaster creates a Broadcaster that reads room summaries from
// registry and writes through emitter.
func NewBroadcaster(registry *Registry, emitter Emitter, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, emitter: emitter, logger: logger}
}

// Sequence runs fn while holding the fan-out lock. fn must not call
// Sequence again.
func (b *Broadcaster) Sequence(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// Broadcast sends a fresh room list to every connection.
func (b *Broadcaster) Broadcast(ctx context.Context) {
	b.Publish(ctx, EventRoomList, b.registry.ListRooms())
}

// Publish sends one event to every connection and returns how many sends
// succeeded.
func (b *Broadcaster) Publish(_ context.Context, event string, data any) int {
	env := Envelope{Event: event, Data: data}
	delivered := 0
	for _, connID := range b.emitter.Connections() {
		if err := b.sendOne(connID, env); err != nil {
			b.logger.Debug("Broadcast delivery failed", "conn", connID, "event", event, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) sendOne(connID string, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: send panicked: %v", ErrInternal, r)
		}
	}()
	return b.emitter.Send(connID, env)
}
