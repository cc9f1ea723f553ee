package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives the raw payload of an emitted event.
type Handler func(data json.RawMessage)

// registry fans dispatched events out to subscribers. Handlers are keyed by
// an insertion token so removing one never touches its siblings, and the
// same handler can be registered under several keys independently.
type registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	sets   map[string]map[int]Handler
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{
		logger: logger,
		sets:   make(map[string]map[int]Handler),
	}
}

// add registers h under key and returns a function that removes exactly that
// registration. Calling it more than once is harmless.
func (r *registry) add(key string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	set := r.sets[key]
	if set == nil {
		set = make(map[int]Handler)
		r.sets[key] = set
	}
	set[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if set, ok := r.sets[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.sets, key)
			}
		}
	}
}

// emit invokes every handler currently registered for key, synchronously in
// the caller's goroutine, preserving frame delivery order.
func (r *registry) emit(key string, data json.RawMessage) {
	r.mu.Lock()
	set := r.sets[key]
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		r.invoke(key, h, data)
	}
}

// invoke isolates a panicking handler so its siblings still run and the read
// pump survives.
func (r *registry) invoke(key string, h Handler, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("gateway: event handler panicked", "event", key, "panic", rec)
		}
	}()
	h(data)
}
