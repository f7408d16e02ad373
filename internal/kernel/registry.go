package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ex-tgbot/pkg/tgbot"
)

// HandlerRegistry holds statically registered handlers sorted by priority.
//
// Mutations are serialized and publish a fresh slice; readers take snapshots
// without locking and may observe a slightly stale but always sorted view.
type HandlerRegistry struct {
	mu       sync.Mutex
	handlers atomic.Pointer[[]tgbot.Handler]
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	registry := &HandlerRegistry{}
	empty := make([]tgbot.Handler, 0)
	registry.handlers.Store(&empty)

	return registry
}

// Register inserts handler after all handlers of lower or equal priority.
func (r *HandlerRegistry) Register(handler tgbot.Handler) error {
	if handler == nil {
		return fmt.Errorf("register handler: %w", tgbot.ErrNilHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.handlers.Load()
	next := make([]tgbot.Handler, 0, len(current)+1)
	next = append(next, current...)
	next = insertSorted(next, handler)
	r.handlers.Store(&next)

	return nil
}

// Unregister removes the first registration of exactly this handler value.
func (r *HandlerRegistry) Unregister(handler tgbot.Handler) bool {
	if handler == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.handlers.Load()
	for idx, existing := range current {
		if !sameHandler(existing, handler) {
			continue
		}
		next := make([]tgbot.Handler, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		r.handlers.Store(&next)
		return true
	}

	return false
}

// Snapshot returns the current ordered handlers. The slice must not be modified.
func (r *HandlerRegistry) Snapshot() []tgbot.Handler {
	return *r.handlers.Load()
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	return len(*r.handlers.Load())
}
