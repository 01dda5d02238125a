package events

import (
	"context"
	"sync"

	"quizgame-service/internal/logger"
)

const subscriberBuffer = 64

// Hub is an in-process publisher with per-game, per-kind subscriptions.
// Delivery to one subscriber follows publish order; a subscriber whose buffer
// is full is dropped and its channel closed rather than skipping events.
type Hub struct {
	log  *logger.Logger
	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("component", "events.Hub"),
		subs: make(map[int64]map[*subscriber]struct{}),
	}
}

// Publish delivers e to the game's subscribers. It never fails.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.Deliver(e)
	return nil
}

// Deliver is the forwarder callback used by remote buses.
func (h *Hub) Deliver(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[e.GameID] {
		if len(sub.kinds) > 0 && !sub.kinds[e.Kind] {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.log.Warn("dropping slow subscriber", "game", e.GameID, "kind", e.Kind)
			h.removeLocked(e.GameID, sub)
		}
	}
}

// Subscribe returns a channel of the game's events, limited to kinds when any
// are given. The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(gameID int64, kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	h.mu.Lock()
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[*subscriber]struct{})
	}
	h.subs[gameID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		h.removeLocked(gameID, sub)
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Subscribers reports how many subscriptions a game currently has.
func (h *Hub) Subscribers(gameID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[gameID])
}

func (h *Hub) removeLocked(gameID int64, sub *subscriber) {
	set, ok := h.subs[gameID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, gameID)
	}
}
