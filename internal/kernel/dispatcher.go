package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ex-tgbot/pkg/tgbot"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// outcome classifies one handler invocation.
type outcome int

const (
	outcomePassed outcome = iota
	outcomeClaimed
	outcomeCanceled
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeClaimed:
		return "claimed"
	case outcomeCanceled:
		return "canceled"
	case outcomeFailed:
		return "failed"
	default:
		return "passed"
	}
}

// DispatchResult summarizes one walk of the handler chain.
type DispatchResult struct {
	// Claimed reports whether a handler claimed the update.
	Claimed bool
	// ClaimedBy is the claiming handler, nil when unclaimed.
	ClaimedBy tgbot.Handler
	// Invocations counts handlers that were called.
	Invocations int
	// Failures counts invocations that returned a non-cancellation error or panicked.
	Failures int
	// Canceled counts invocations that reported a cancellation.
	Canceled int
	// Aborted reports that the outer context ended before any handler claimed
	// the update, including cancellation during the last handler.
	Aborted bool
}

// Dispatcher walks an ordered handler chain for one update until a handler
// claims it. Handler failures are isolated and reported; they never stop the
// walk. Only cancellation of the dispatch context does.
type Dispatcher struct {
	logger  *slog.Logger
	onError ErrorReporter
	ins     *instruments
}

// NewDispatcher creates a dispatcher. Only logging, error reporting and
// telemetry options apply.
func NewDispatcher(options ...Option) *Dispatcher {
	cfg := newConfig(options)

	return newDispatcher(cfg, newInstruments(cfg.tracerProvider, cfg.meterProvider))
}

func newDispatcher(cfg config, ins *instruments) *Dispatcher {
	return &Dispatcher{
		logger:  cfg.logger,
		onError: cfg.onError,
		ins:     ins,
	}
}

// Dispatch offers update to handlers in order.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	bot tgbot.Bot,
	update *tgbot.Update,
	handlers []tgbot.Handler,
) DispatchResult {
	ctx, span := d.ins.tracer.Start(ctx, "tgbot.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attrUpdateID.Int64(update.ID),
			attrUpdateType.String(string(update.Type)),
		),
	)
	defer span.End()

	updateAttrs := metric.WithAttributes(attrUpdateType.String(string(update.Type)))
	d.ins.updatesDispatched.Add(ctx, 1, updateAttrs)
	startedAt := time.Now()

	var result DispatchResult
	for _, handler := range handlers {
		if ctx.Err() != nil {
			result.Aborted = true
			break
		}

		invocationOutcome := d.invoke(ctx, bot, update, handler)
		result.Invocations++

		switch invocationOutcome {
		case outcomeClaimed:
			result.Claimed = true
			result.ClaimedBy = handler
		case outcomeCanceled:
			result.Canceled++
		case outcomeFailed:
			result.Failures++
		case outcomePassed:
		}
		if result.Claimed {
			break
		}
	}
	if !result.Claimed && ctx.Err() != nil {
		result.Aborted = true
	}

	d.ins.dispatchDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()), updateAttrs)
	span.SetAttributes(attrInvocations.Int(result.Invocations))
	switch {
	case result.Claimed:
		d.ins.updatesClaimed.Add(ctx, 1, updateAttrs)
		span.SetAttributes(attrOutcome.String(outcomeClaimed.String()))
	case result.Aborted:
		span.SetAttributes(attrOutcome.String("aborted"))
	default:
		d.ins.updatesUnclaimed.Add(ctx, 1, updateAttrs)
		span.SetAttributes(attrOutcome.String("unclaimed"))
	}
	if result.Failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler failures", result.Failures))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return result
}

// invoke runs one handler with panic isolation and classifies the result.
// An error wins over a true claim.
func (d *Dispatcher) invoke(
	ctx context.Context,
	bot tgbot.Bot,
	update *tgbot.Update,
	handler tgbot.Handler,
) outcome {
	name := fmt.Sprintf("%T", handler)
	priority := handler.Priority()

	ctx, span := d.ins.tracer.Start(ctx, "tgbot.handle",
		trace.WithAttributes(
			attrHandler.String(name),
			attrPriority.Int(priority),
			attrUpdateID.Int64(update.ID),
		),
	)
	defer span.End()

	scope := fmt.Sprintf("update %d handler %s", update.ID, name)
	var claimed bool
	err := runSafely(scope, func() error {
		var handleErr error
		claimed, handleErr = handler.HandleUpdate(ctx, bot, update)
		return handleErr
	})

	var result outcome
	switch {
	case err != nil && tgbot.IsCancellation(err):
		result = outcomeCanceled
		d.logger.DebugContext(ctx, "handler canceled",
			"update_id", update.ID,
			"handler", name,
			"priority", priority,
			"error", err,
		)
	case err != nil:
		result = outcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.ins.handlerFailures.Add(ctx, 1, metric.WithAttributes(attrHandler.String(name)))
		d.onError(ctx, scope, err)
	case claimed:
		result = outcomeClaimed
	default:
		result = outcomePassed
	}
	span.SetAttributes(attrOutcome.String(result.String()))

	return result
}
