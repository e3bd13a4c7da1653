package chat

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically deletes rooms that have stayed empty for longer than
// a grace period, then re-broadcasts the room list.
type Reaper struct {
	registry    *Registry
	broadcaster *Broadcaster
	ttl         time.Duration
	interval    time.Duration
	logger      *slog.Logger
}

// NewReaper creates a Reaper. A non-positive ttl disables reaping.
func NewReaper(registry *Registry, broadcaster *Broadcaster, ttl, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		registry:    registry,
		broadcaster: broadcaster,
		ttl:         ttl,
		interval:    interval,
		logger:      logger,
	}
}

// Enabled reports whether the reaper will delete anything.
func (r *Reaper) Enabled() bool {
	return r.ttl > 0
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	if !r.Enabled() {
		r.logger.Debug("Room reaper disabled")
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reap pass and returns the deleted room ids.
func (r *Reaper) Sweep(ctx context.Context) []RoomID {
	if !r.Enabled() {
		return nil
	}
	var reaped []RoomID
	r.broadcaster.Sequence(func() {
		reaped = r.registry.Reap(r.ttl)
		if len(reaped) == 0 {
			return
		}
		r.logger.Info("Reaped idle rooms", "count", len(reaped), "remaining", r.registry.Len())
		r.broadcaster.Broadcast(ctx)
	})
	if len(reaped) == 0 {
		return nil
	}
	return reaped
}
