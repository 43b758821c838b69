// Package telemetry fans out per-cycle frames to the recorder, the HTTP status endpoint and
// websocket clients without ever blocking the decision loop.
package telemetry

import (
	"errors"
	"sync"
	"sync/atomic"

	"TerraNav/internal/model"
)

var (
	ErrHubClosed          = errors.New("telemetry hub closed")
	ErrSubscriberExists   = errors.New("subscriber already registered")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNilChannel         = errors.New("nil channel")
)

// SubscriberStats counts deliveries to one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch    chan<- model.Frame
	stats SubscriberStats
}

// Hub distributes frames to subscriber channels. A full channel drops the new frame.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	latest      model.Frame
	hasLatest   bool
	published   uint64
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id.
func (h *Hub) Subscribe(id string, ch chan<- model.Frame) error {
	if ch == nil {
		return ErrNilChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.subscribers[id]; ok {
		return ErrSubscriberExists
	}
	h.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. Its channel is not closed.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(h.subscribers, id)
	return nil
}

// Publish stores f as the latest frame and offers it to every subscriber.
func (h *Hub) Publish(f model.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest, h.hasLatest = f, true
	atomic.AddUint64(&h.published, 1)
	for _, s := range h.subscribers {
		select {
		case s.ch <- f:
			atomic.AddUint64(&s.stats.Sent, 1)
		default:
			atomic.AddUint64(&s.stats.Dropped, 1)
		}
	}
}

// Latest returns the last published frame.
func (h *Hub) Latest() (model.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasLatest
}

// Published returns the number of frames published so far.
func (h *Hub) Published() uint64 {
	return atomic.LoadUint64(&h.published)
}

// Stats returns delivery counters of one subscriber.
func (h *Hub) Stats(id string) (SubscriberStats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subscribers[id]
	if !ok {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&s.stats.Sent),
		Dropped: atomic.LoadUint64(&s.stats.Dropped),
	}, nil
}

// Close drops all subscribers; later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subscribers = make(map[string]*subscriber)
}
