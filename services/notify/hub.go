// Package notifysvc fans identity changes out to the live subscribers of each user.
package notifysvc

import (
	"sync"

	"github.com/trezcool/iems/core/user"
)

// subscriptionBuffer is how many changes a subscriber may lag behind before new ones are dropped.
const subscriptionBuffer = 16

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

var _ user.IdentityPublisher = (*Hub)(nil) // interface compliance check

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives the identity changes of one user until closed.
type Subscription struct {
	hub    *Hub
	userID string
	ch     chan user.IdentityChange
	once   sync.Once
}

// Subscribe registers a new subscription for userID.
// On a closed hub the subscription is returned already closed.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{hub: h, userID: userID, ch: make(chan user.IdentityChange, subscriptionBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

// Publish delivers change to every subscription of its user without blocking.
// A subscriber whose buffer is full misses the change.
func (h *Hub) Publish(change user.IdentityChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[change.UserID] {
		select {
		case sub.ch <- change:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close closes every subscription; later subscriptions are closed on arrival.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, userID)
	}
}

func (s *Subscription) UserID() string {
	return s.userID
}

// C is closed once the subscription is closed.
func (s *Subscription) C() <-chan user.IdentityChange {
	return s.ch
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs, ok := s.hub.subs[s.userID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.userID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}
