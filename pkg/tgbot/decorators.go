package tgbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WithFallThroughLog wraps next so every offered update is logged at debug
// level before next runs. A nil next yields a handler that only logs and never
// claims, at the given priority.
func WithFallThroughLog(next Handler, logger *slog.Logger, priority int) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if next != nil {
		priority = next.Priority()
	}

	return &fallThroughLogHandler{next: next, logger: logger, priority: priority}
}

type fallThroughLogHandler struct {
	next     Handler
	logger   *slog.Logger
	priority int
}

func (h *fallThroughLogHandler) Priority() int {
	return h.priority
}

func (h *fallThroughLogHandler) HandleUpdate(ctx context.Context, bot Bot, update *Update) (bool, error) {
	h.logger.DebugContext(ctx, "update offered",
		"update_id", update.ID,
		"update_type", update.Type,
		"priority", h.priority,
		"handler", handlerName(h.next),
	)
	if h.next == nil {
		return false, nil
	}

	return h.next.HandleUpdate(ctx, bot, update)
}

// WithTimeout bounds each invocation of next by timeout. When the deadline
// expires the dispatcher sees a cancellation and moves on.
//
// The dispatcher applies no per-handler timeout on its own; a handler that
// blocks stalls the whole loop unless it is wrapped here.
func WithTimeout(next Handler, timeout time.Duration) Handler {
	if timeout <= 0 || next == nil {
		return next
	}

	return &timeoutHandler{next: next, timeout: timeout}
}

type timeoutHandler struct {
	next    Handler
	timeout time.Duration
}

func (h *timeoutHandler) Priority() int {
	return h.next.Priority()
}

func (h *timeoutHandler) HandleUpdate(ctx context.Context, bot Bot, update *Update) (bool, error) {
	handlerCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	claimed, err := h.next.HandleUpdate(handlerCtx, bot, update)
	if err != nil {
		return claimed, fmt.Errorf("handler %s: %w", handlerName(h.next), err)
	}

	return claimed, nil
}

func handlerName(handler Handler) string {
	if handler == nil {
		return "<none>"
	}

	return fmt.Sprintf("%T", handler)
}
