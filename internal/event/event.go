// Package event defines the normalized signal emitted by event source adapters
// and a small fan-out hub adapters use to serve independent subscribers.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Kind is the normalized signal type.
type Kind string

const (
	Connected           Kind = "connected"
	CredentialRejected  Kind = "credential_rejected"
	HandshakeProgress   Kind = "handshake_progress"
	HandshakeTimedOut   Kind = "handshake_timed_out"
	AssociationRejected Kind = "association_rejected"
)

// Event is one normalized observation about a target.
type Event struct {
	Kind   Kind      `json:"kind"`
	Target string    `json:"target"`
	Time   time.Time `json:"time"`
	// AttemptStart is when the adapter saw the connection attempt begin.
	// Zero when the adapter cannot tell.
	AttemptStart time.Time `json:"attempt_start,omitempty"`
	// HandshakeElapsed and RepeatCount are set for HandshakeProgress.
	HandshakeElapsed time.Duration `json:"handshake_elapsed,omitempty"`
	RepeatCount      int           `json:"repeat_count,omitempty"`
	// Source names the adapter that produced the event.
	Source string `json:"source,omitempty"`
}

// Source produces a lazy, unbounded stream of events. Every call to Subscribe
// registers a new independent subscriber before returning; the channel is
// closed when ctx is done or the source shuts down.
type Source interface {
	Subscribe(ctx context.Context) <-chan Event
}

// BufferSize is the per-subscriber buffer of a Hub.
const BufferSize = 64

// Hub fans published events out to subscribers. A subscriber that falls more
// than BufferSize events behind loses the newest events; Dropped counts them.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	closed  bool
	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe implements Source.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, BufferSize)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}()
	return ch
}

// Publish delivers ev to every current subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were dropped on full buffers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close closes every subscriber channel. Later subscriptions are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
