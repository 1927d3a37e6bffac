package live

import (
	"context"
	"sort"
	"sync"

	"github.com/briangreenhill/finboard/internal/cache"
)

// HandlerFunc reacts to one pushed event
type HandlerFunc func(ctx context.Context, ev Event)

// Registry maps push actions to the handlers that react to them. Actions
// with no handler are ignored by the channel.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register sets the handler for action, replacing any previous one
func (r *Registry) Register(action string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[action] = h
	r.mu.Unlock()
}

// Lookup returns the handler for action
func (r *Registry) Lookup(action string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[action]
	return h, ok
}

// Actions returns the registered action names in order
func (r *Registry) Actions() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for ev.Action and reports whether there was one
func (r *Registry) Dispatch(ctx context.Context, ev Event) bool {
	h, ok := r.Lookup(ev.Action)
	if !ok {
		return false
	}
	h(ctx, ev)
	return true
}

// Invalidates returns a handler that marks every prefix stale through
// invalidate, usually a query.Client's Invalidate method.
func Invalidates(invalidate func(prefixes ...cache.Key), prefixes ...cache.Key) HandlerFunc {
	return func(ctx context.Context, ev Event) {
		invalidate(prefixes...)
	}
}
