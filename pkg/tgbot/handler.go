package tgbot

import "context"

// Handler inspects an update and optionally claims it.
//
// Handlers are offered updates in ascending Priority order. Returning true
// claims the update and no later handler sees it. Returning an error reports a
// failure and lets the next handler try; an error matching ErrHandlerCanceled,
// context.Canceled or context.DeadlineExceeded is treated as "not claimed"
// without being reported.
//
// Handlers must be safe for use from the dispatch goroutine while other
// goroutines register or unregister handlers.
type Handler interface {
	// Priority orders the handler chain; lower values run earlier.
	Priority() int
	// HandleUpdate processes one update and reports whether it was claimed.
	HandleUpdate(ctx context.Context, bot Bot, update *Update) (bool, error)
}

// HandlerFunc is the function shape accepted by NewHandler.
type HandlerFunc func(ctx context.Context, bot Bot, update *Update) (bool, error)

// FuncHandler adapts a HandlerFunc with a fixed priority to Handler.
type FuncHandler struct {
	priority int
	fn       HandlerFunc
}

// NewHandler wraps fn as a Handler.
//
// The returned pointer is the identity used by registry removal, so callers
// that intend to unregister must keep it.
func NewHandler(priority int, fn HandlerFunc) *FuncHandler {
	return &FuncHandler{priority: priority, fn: fn}
}

// Priority returns the configured priority.
func (h *FuncHandler) Priority() int {
	return h.priority
}

// HandleUpdate invokes the wrapped function. A nil function never claims.
func (h *FuncHandler) HandleUpdate(ctx context.Context, bot Bot, update *Update) (bool, error) {
	if h.fn == nil {
		return false, nil
	}

	return h.fn(ctx, bot, update)
}

// HandlerScope is a set of handlers resolved for one dispatch cycle.
type HandlerScope interface {
	// Handlers returns the scope's handlers in any order.
	Handlers() []Handler
	// Close releases scope-owned handler instances.
	Close(ctx context.Context) error
}

// ScopedResolver produces a fresh HandlerScope for every dispatched update.
type ScopedResolver interface {
	// ResolveScope creates the handlers for one dispatch cycle.
	ResolveScope(ctx context.Context) (HandlerScope, error)
}

// ScopedResolverFunc adapts a function returning plain handlers to ScopedResolver.
type ScopedResolverFunc func(ctx context.Context) ([]Handler, error)

// ResolveScope calls f and wraps the result in a scope with a no-op Close.
func (f ScopedResolverFunc) ResolveScope(ctx context.Context) (HandlerScope, error) {
	handlers, err := f(ctx)
	if err != nil {
		return nil, err
	}

	return StaticScope(handlers), nil
}

// StaticScope is a HandlerScope over a fixed slice with nothing to release.
type StaticScope []Handler

// Handlers returns the slice itself.
func (s StaticScope) Handlers() []Handler {
	return s
}

// Close is a no-op.
func (StaticScope) Close(context.Context) error {
	return nil
}

// CommandSpec documents one command a handler answers.
type CommandSpec struct {
	// Name is the command without the leading slash.
	Name string
	// Description is a short usage line.
	Description string
}

// CommandDescriber is implemented by handlers that answer bot commands.
type CommandDescriber interface {
	Commands() []CommandSpec
}
