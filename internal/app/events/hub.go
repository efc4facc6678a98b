// Package events fans host-bound side effects out to per-session subscribers.
package events

import (
	"sync"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

const defaultBuffer = 32

// Hub is a per-session publish/subscribe bus. Publishing never blocks: a full
// subscriber loses its oldest pending event.
type Hub struct {
	mu     sync.Mutex
	subs   map[domain.SessionID]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch     chan domain.Event
	closed bool
}

var _ domain.EventPublisher = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[domain.SessionID]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events for the session and a cancel func
// that closes it. cancel is idempotent.
func (h *Hub) Subscribe(sessionID domain.SessionID) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, h.buffer)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(sessionID, sub)
	}
	return sub.ch, cancel
}

func (h *Hub) Publish(sessionID domain.SessionID, evt domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[sessionID] {
		push(sub.ch, evt)
	}
}

// CloseSession closes every subscription of the session.
func (h *Hub) CloseSession(sessionID domain.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[sessionID] {
		h.remove(sessionID, sub)
	}
}

// Subscribers reports how many subscriptions the session has.
func (h *Hub) Subscribers(sessionID domain.SessionID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *Hub) remove(sessionID domain.SessionID, sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)

	delete(h.subs[sessionID], sub)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// push drops the oldest buffered event when ch is full.
func push(ch chan domain.Event, evt domain.Event) {
	select {
	case ch <- evt:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}
