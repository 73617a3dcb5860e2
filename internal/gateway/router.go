// ABOUTME: Event router dispatching server-pushed events to subscribers by name.
// ABOUTME: Dispatch is synchronous per frame so per-connection ordering is preserved.

package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// EventHandler receives one event's name and raw payload. Handlers run on
// the connection's reader goroutine and must not block.
type EventHandler func(event string, payload json.RawMessage)

// Router dispatches inbound event frames to subscribers. Events with no
// subscriber go to the catch-all sink for diagnostics instead of being
// dropped silently.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	catchAll []EventHandler
	logger   *slog.Logger
}

// NewRouter creates a router. Pass nil logger for the default.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string][]EventHandler),
		logger:   logger.With("component", "router"),
	}
}

// Subscribe registers a handler for the named event.
func (r *Router) Subscribe(event string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// SubscribeAll registers a catch-all handler that receives events no named
// subscriber claimed.
func (r *Router) SubscribeAll(h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catchAll = append(r.catchAll, h)
}

// Dispatch delivers one event synchronously, in arrival order.
func (r *Router) Dispatch(event string, payload json.RawMessage) {
	r.mu.RLock()
	handlers := r.handlers[event]
	catchAll := r.catchAll
	r.mu.RUnlock()

	if len(handlers) == 0 {
		if len(catchAll) == 0 {
			r.logger.Debug("event with no subscriber", "event", event)
			return
		}
		for _, h := range catchAll {
			h(event, payload)
		}
		return
	}

	for _, h := range handlers {
		h(event, payload)
	}
}

// Clear drops every subscription. Called on explicit disconnect so a
// reconnected session starts with a fresh table.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]EventHandler)
	r.catchAll = nil
}
