package appstate

import (
	"sync"
	"sync/atomic"
)

// ringSize bounds each subscriber's backlog. A subscriber that falls this
// far behind is not disconnected — it is signaled a lag count, messages
// published while its buffer is full are dropped for it, and it keeps the
// messages already buffered and receives new ones once it drains.
const ringSize = 4096

// Hub is a many-to-many fan-out of pre-serialized messages. Publish never
// blocks on a slow subscriber: a full subscriber channel increments that
// subscriber's lag counter instead of waiting.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID atomic.Uint64
}

type subscriber struct {
	ch        chan []byte
	lagNotify chan uint64
	lagged    atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Publish hands msg to every current subscriber. The caller must not mutate
// msg afterward — it is shared by reference across all subscribers.
func (h *Hub) Publish(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			n := s.lagged.Add(1)
			select {
			case s.lagNotify <- n:
			default:
			}
		}
	}
}

// Subscription is a single subscriber's view of the hub.
type Subscription struct {
	id  uint64
	hub *Hub
	sub *subscriber
}

func (h *Hub) Subscribe() *Subscription {
	id := h.nextID.Add(1)
	s := &subscriber{
		ch:        make(chan []byte, ringSize),
		lagNotify: make(chan uint64, 1),
	}
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return &Subscription{id: id, hub: h, sub: s}
}

// Messages is the channel of forwarded broadcast payloads.
func (s *Subscription) Messages() <-chan []byte { return s.sub.ch }

// Lagged fires whenever this subscriber drops messages for falling behind.
func (s *Subscription) Lagged() <-chan uint64 { return s.sub.lagNotify }

// Close removes the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
}
