package bus

import "sync"

// Hub is the in-process implementation of EventPublisher: a mutex-guarded
// map of subscriber id to handler, broadcasting synchronously to every
// subscriber. The teacher's gateway server consumes an EventPublisher but
// its own hub wiring lived in a file outside the retrieved source tree;
// this is the straightforward concrete fill-in for that interface.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]EventHandler
}

// NewHub constructs an empty event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]EventHandler)}
}

func (h *Hub) Subscribe(id string, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = handler
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	handlers := make([]EventHandler, 0, len(h.subscribers))
	for _, handler := range h.subscribers {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
