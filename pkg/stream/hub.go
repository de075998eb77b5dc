package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tradeflow/internal/logging"
)

// Hub keys channels by workflow id. It implements ports.Notifier.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*Channel
	logger   *slog.Logger
	now      func() time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithClock overrides time.Now for buffer ages.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		channels: make(map[string]*Channel),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect subscribes to id, creating its channel if needed.
func (h *Hub) Connect(id string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.channel(id)
	sub := newSubscription()
	sub.release = func() { h.release(id, ch, sub) }

	ch.mu.Lock()
	preempting := ch.waiter != nil
	ch.connectLocked(sub)
	idle := ch.idleLocked()
	ch.mu.Unlock()

	if idle {
		delete(h.channels, id)
	}
	h.logger.Debug("Stream connected", "workflow_id", id, "immediate", idle, "preempted_previous", preempting)
	return sub
}

// Emit delivers or buffers payload for id and reports whether it reached a live subscriber.
func (h *Hub) Emit(id string, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.channel(id)
	ch.mu.Lock()
	delivered := ch.emitLocked(payload)
	idle := ch.idleLocked()
	ch.mu.Unlock()

	if idle {
		delete(h.channels, id)
	}
	h.logger.Debug("Stream emit", "workflow_id", id, "delivered", delivered, "payload_size", len(payload))
	return delivered
}

// Notify implements ports.Notifier.
func (h *Hub) Notify(ctx context.Context, workflowID string, payload []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return h.Emit(workflowID, payload), nil
}

// Sweep drops buffered payloads older than maxAge that nobody connected for.
// It returns the number of channels removed.
func (h *Hub) Sweep(maxAge time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-maxAge)
	removed := 0
	for id, ch := range h.channels {
		ch.mu.Lock()
		stale := ch.buffered && ch.waiter == nil && ch.since.Before(cutoff)
		ch.mu.Unlock()
		if stale {
			delete(h.channels, id)
			removed++
		}
	}
	if removed > 0 {
		h.logger.Debug("Stream sweep removed unclaimed payloads", "count", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx ends.
func (h *Hub) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(maxAge)
		}
	}
}

// Stats reports how many channels hold a waiter and how many hold a payload.
func (h *Hub) Stats() (waiting, buffered int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.channels {
		ch.mu.Lock()
		if ch.waiter != nil {
			waiting++
		}
		if ch.buffered {
			buffered++
		}
		ch.mu.Unlock()
	}
	return waiting, buffered
}

// Len returns the number of live channels.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *Hub) channel(id string) *Channel {
	ch, ok := h.channels[id]
	if !ok {
		ch = &Channel{now: h.now}
		h.channels[id] = ch
	}
	return ch
}

func (h *Hub) release(id string, ch *Channel, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch.mu.Lock()
	ch.releaseLocked(sub)
	idle := ch.idleLocked()
	ch.mu.Unlock()

	if idle && h.channels[id] == ch {
		delete(h.channels, id)
	}
}
