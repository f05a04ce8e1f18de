package placeholder

import (
	"context"
	"sort"
	"sync"
)

// Handler produces the value of a placeholder. It may block; the responder
// runs each request on its own goroutine.
type Handler func(ctx context.Context, params Params) (string, error)

// Registry maps placeholder ids to handlers. Last registration wins and there
// is no removal.
//
// Registry is concurrency-safe and contains no global state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Listen registers or replaces the handler for id.
func (r *Registry) Listen(id string, h Handler) {
	r.mu.Lock()
	r.handlers[id] = h
	r.mu.Unlock()
}

// ListenFunc registers a plain synchronous provider.
func (r *Registry) ListenFunc(id string, f func(params Params) string) {
	r.Listen(id, func(_ context.Context, p Params) (string, error) { return f(p), nil })
}

// Lookup returns the handler for id.
func (r *Registry) Lookup(id string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()

	return h, ok && h != nil
}

// IDs returns the registered placeholder ids sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)

	return ids
}
