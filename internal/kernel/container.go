package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ex-tgbot/pkg/tgbot"
)

// HandlerFactory builds one scoped handler instance.
type HandlerFactory func(ctx context.Context) (tgbot.Handler, error)

// scopeCloser is implemented by scoped handlers that own resources.
type scopeCloser interface {
	Close(ctx context.Context) error
}

type containerEntry struct {
	name      string
	singleton tgbot.Handler
	factory   HandlerFactory
}

// Container is an in-memory handler container resolving a fresh scope per
// dispatched update. It implements tgbot.ScopedResolver.
type Container struct {
	mu      sync.RWMutex
	names   map[string]struct{}
	entries []containerEntry
}

// NewContainer creates an empty handler container.
func NewContainer() *Container {
	return &Container{
		names: make(map[string]struct{}),
	}
}

// AddSingleton registers a handler instance shared by every scope.
func (c *Container) AddSingleton(name string, handler tgbot.Handler) error {
	if handler == nil {
		return fmt.Errorf("add singleton %s: %w", name, tgbot.ErrNilHandler)
	}

	return c.add(containerEntry{name: name, singleton: handler})
}

// AddScoped registers a factory invoked once per resolved scope.
func (c *Container) AddScoped(name string, factory HandlerFactory) error {
	if factory == nil {
		return fmt.Errorf("add scoped %s: nil factory", name)
	}

	return c.add(containerEntry{name: name, factory: factory})
}

func (c *Container) add(entry containerEntry) error {
	if entry.name == "" {
		return fmt.Errorf("register handler: empty name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.names[entry.name]; exists {
		return fmt.Errorf("register handler %s: %w", entry.name, tgbot.ErrHandlerAlreadyRegistered)
	}
	c.names[entry.name] = struct{}{}
	c.entries = append(c.entries, entry)

	return nil
}

// Len returns the number of registrations.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// ResolveScope instantiates every registration in registration order. When a
// factory fails, instances built so far are closed and the error is returned.
func (c *Container) ResolveScope(ctx context.Context) (tgbot.HandlerScope, error) {
	c.mu.RLock()
	entries := append([]containerEntry(nil), c.entries...)
	c.mu.RUnlock()

	scope := &containerScope{handlers: make([]tgbot.Handler, 0, len(entries))}
	for _, entry := range entries {
		if entry.factory == nil {
			scope.handlers = append(scope.handlers, entry.singleton)
			continue
		}

		handler, err := entry.factory(ctx)
		if err == nil && handler == nil {
			err = tgbot.ErrNilHandler
		}
		if err != nil {
			resolveErr := fmt.Errorf("resolve scoped handler %s: %w", entry.name, err)
			if closeErr := scope.Close(context.WithoutCancel(ctx)); closeErr != nil {
				resolveErr = errors.Join(resolveErr, closeErr)
			}
			return nil, resolveErr
		}

		scope.handlers = append(scope.handlers, handler)
		if closer, ok := handler.(scopeCloser); ok {
			scope.owned = append(scope.owned, ownedHandler{name: entry.name, closer: closer})
		}
	}

	return scope, nil
}

type ownedHandler struct {
	name   string
	closer scopeCloser
}

// containerScope holds one dispatch cycle's handlers.
type containerScope struct {
	handlers []tgbot.Handler
	owned    []ownedHandler

	closeOnce sync.Once
	closeErr  error
}

func (s *containerScope) Handlers() []tgbot.Handler {
	return s.handlers
}

// Close closes scoped instances in reverse creation order. Singletons are not
// owned by the scope and are left alone.
func (s *containerScope) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		for idx := len(s.owned) - 1; idx >= 0; idx-- {
			owned := s.owned[idx]
			err := runSafely("close scoped handler "+owned.name, func() error {
				return owned.closer.Close(ctx)
			})
			if err != nil {
				s.closeErr = errors.Join(s.closeErr, fmt.Errorf("close scoped handler %s: %w", owned.name, err))
			}
		}
	})

	return s.closeErr
}
