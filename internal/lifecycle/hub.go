package lifecycle

import "sync"

// Hub is a fan-out EventSource implementation for hosts that push phase
// changes imperatively (the supervisor daemon feeds it from an HTTP endpoint;
// an embedded host would feed it from its platform callback).
type Hub struct {
	mu        sync.Mutex
	listeners []func(Phase)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// AddListener registers a listener for future phase changes.
func (h *Hub) AddListener(fn func(Phase)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Dispatch delivers a phase change to every registered listener, in
// registration order, on the caller's goroutine.
func (h *Hub) Dispatch(p Phase) {
	h.mu.Lock()
	listeners := make([]func(Phase), len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}
