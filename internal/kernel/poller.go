package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"ex-tgbot/pkg/tgbot"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PollerState is one state of the poll loop state machine.
type PollerState int32

const (
	// StateIdle is the state before Run is called.
	StateIdle PollerState = iota
	// StateStarting establishes the session and resolves the bot identity.
	StateStarting
	// StatePolling waits for the next batch of updates.
	StatePolling
	// StateDispatching offers the fetched batch to the handler chain.
	StateDispatching
	// StateStopped is entered once cancellation has unwound the loop.
	StateStopped
)

// String returns the lower-case state name.
func (s PollerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Poller drives the fetch, dispatch, advance cycle for one bot.
//
// Exactly one goroutine runs the loop, so updates are dispatched strictly one
// at a time in fetch order. The cursor is advanced past an update before the
// update is dispatched: a handler that fails or hangs never causes the same
// update to be fetched again while this process holds the cursor.
type Poller struct {
	cfg        config
	source     tgbot.UpdateSource
	bot        tgbot.Bot
	registry   *HandlerRegistry
	dispatcher *Dispatcher
	ins        *instruments

	offset atomic.Int64
	state  atomic.Int32
}

// NewPoller creates a poll loop over source. Handlers see bot as their action
// surface; registry supplies the static handlers.
func NewPoller(
	source tgbot.UpdateSource,
	bot tgbot.Bot,
	registry *HandlerRegistry,
	options ...Option,
) (*Poller, error) {
	cfg := newConfig(options)
	ins := newInstruments(cfg.tracerProvider, cfg.meterProvider)

	return newPoller(cfg, source, bot, registry, newDispatcher(cfg, ins), ins)
}

func newPoller(
	cfg config,
	source tgbot.UpdateSource,
	bot tgbot.Bot,
	registry *HandlerRegistry,
	dispatcher *Dispatcher,
	ins *instruments,
) (*Poller, error) {
	if source == nil {
		return nil, fmt.Errorf("new poller: nil update source")
	}
	if registry == nil {
		return nil, fmt.Errorf("new poller: nil handler registry")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("new poller: nil dispatcher")
	}

	poller := &Poller{
		cfg:        cfg,
		source:     source,
		bot:        bot,
		registry:   registry,
		dispatcher: dispatcher,
		ins:        ins,
	}
	poller.offset.Store(cfg.initialOffset)

	return poller, nil
}

// Offset returns the next update id the loop will request.
func (p *Poller) Offset() int64 {
	return p.offset.Load()
}

// State returns the current loop state.
func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}

// Run executes the loop until ctx is canceled. Fetch failures, handler
// failures and session drops are logged and retried; Run returns nil once
// cancellation has unwound the loop.
func (p *Poller) Run(ctx context.Context) error {
	logger := p.cfg.logger.With("poll_run_id", uuid.NewString())
	p.setState(StateStarting)
	defer p.setState(StateStopped)

	session, hasSession := p.source.(tgbot.Session)
	if !hasSession {
		p.loop(ctx, logger)
		return nil
	}

	retry := p.newBackOff()
	for {
		err := runSafely("poller session", func() error {
			return session.Run(ctx, func(runCtx context.Context) error {
				retry.Reset()
				p.loop(runCtx, logger)
				return nil
			})
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !isContextCancellation(err) {
			logger.ErrorContext(ctx, "update source session failed", "error", err)
		}
		p.setState(StateStarting)
		if !sleepContext(ctx, retry.NextBackOff()) {
			return nil
		}
	}
}

// loop runs the polling state machine until ctx is done.
func (p *Poller) loop(ctx context.Context, logger *slog.Logger) {
	p.logIdentity(ctx, logger)

	retry := p.newBackOff()
	for {
		if ctx.Err() != nil {
			return
		}

		p.setState(StatePolling)
		updates, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.ins.fetchFailures.Add(ctx, 1)
			delay := retry.NextBackOff()
			logFetchError(ctx, logger, err, p.Offset(), delay)
			if !sleepContext(ctx, delay) {
				return
			}
			continue
		}
		retry.Reset()
		if len(updates) == 0 {
			continue
		}

		p.setState(StateDispatching)
		for idx := range updates {
			if ctx.Err() != nil {
				return
			}
			p.dispatchOne(ctx, logger, &updates[idx])
		}
	}
}

// fetch requests the next batch at the current cursor.
func (p *Poller) fetch(ctx context.Context) ([]tgbot.Update, error) {
	offset := p.Offset()
	ctx, span := p.ins.tracer.Start(ctx, "tgbot.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrOffset.Int64(offset)),
	)
	defer span.End()

	var updates []tgbot.Update
	err := runSafely("fetch updates", func() error {
		var fetchErr error
		updates, fetchErr = p.source.FetchUpdates(ctx, tgbot.FetchRequest{
			Offset:         offset,
			Limit:          p.cfg.pollLimit,
			Timeout:        p.cfg.pollTimeout,
			AllowedUpdates: p.cfg.allowedUpdates,
		})
		return fetchErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attrFetchedCount.Int(len(updates)))

	return updates, nil
}

// dispatchOne advances the cursor past update, then offers it to the merged
// static and scoped handler chain.
func (p *Poller) dispatchOne(ctx context.Context, logger *slog.Logger, update *tgbot.Update) {
	if next := update.ID + 1; next > p.offset.Load() {
		p.offset.Store(next)
	}

	handlers := p.registry.Snapshot()
	scope := p.resolveScope(ctx, logger)
	if scope != nil {
		scoped, skipped := sortHandlers(scope.Handlers())
		if skipped > 0 {
			logger.WarnContext(ctx, "scoped resolver returned nil handlers", "count", skipped)
		}
		handlers = mergeHandlers(handlers, scoped)
		defer p.closeScope(ctx, logger, scope)
	}

	result := p.dispatcher.Dispatch(ctx, p.bot, update, handlers)
	logger.DebugContext(ctx, "update dispatched",
		"update_id", update.ID,
		"update_type", update.Type,
		"offset", p.Offset(),
		"claimed", result.Claimed,
		"invocations", result.Invocations,
		"failures", result.Failures,
		"aborted", result.Aborted,
	)
}

// resolveScope returns nil when no resolver is configured or resolution
// fails; dispatch then proceeds with static handlers only.
func (p *Poller) resolveScope(ctx context.Context, logger *slog.Logger) tgbot.HandlerScope {
	if p.cfg.resolver == nil {
		return nil
	}

	var scope tgbot.HandlerScope
	err := runSafely("resolve handler scope", func() error {
		var resolveErr error
		scope, resolveErr = p.cfg.resolver.ResolveScope(ctx)
		return resolveErr
	})
	if err != nil {
		logger.ErrorContext(ctx, "resolve scoped handlers", "error", err)
		return nil
	}

	return scope
}

// closeScope releases a dispatch scope even when ctx has been canceled.
func (p *Poller) closeScope(ctx context.Context, logger *slog.Logger, scope tgbot.HandlerScope) {
	closeCtx := context.WithoutCancel(ctx)
	err := runSafely("close handler scope", func() error {
		return scope.Close(closeCtx)
	})
	if err != nil {
		logger.ErrorContext(closeCtx, "close scoped handlers", "error", err)
	}
}

// logIdentity resolves the connected identity for diagnostics only.
func (p *Poller) logIdentity(ctx context.Context, logger *slog.Logger) {
	var identity tgbot.Identity
	err := runSafely("resolve identity", func() error {
		var selfErr error
		identity, selfErr = p.source.Self(ctx)
		return selfErr
	})
	if err != nil {
		if ctx.Err() == nil {
			logger.ErrorContext(ctx, "resolve bot identity", "error", err)
		}
		return
	}

	logger.InfoContext(ctx, "connected as user",
		"username", identity.Username,
		"bot_id", identity.ID,
		"offset", p.Offset(),
	)
}

func (p *Poller) setState(state PollerState) {
	previous := PollerState(p.state.Swap(int32(state)))
	if previous != state && p.cfg.onStateChange != nil {
		p.cfg.onStateChange(state)
	}
}

// newBackOff returns the fetch retry policy. It never gives up on its own;
// only cancellation ends retries.
func (p *Poller) newBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.retryInitial
	policy.MaxInterval = p.cfg.retryMax
	policy.MaxElapsedTime = 0
	policy.Reset()

	return policy
}

func logFetchError(ctx context.Context, logger *slog.Logger, err error, offset int64, delay time.Duration) {
	if isPollTimeout(err) {
		logger.DebugContext(ctx, "fetch updates timed out", "offset", offset, "error", err)
		return
	}
	logger.WarnContext(ctx, "fetch updates failed",
		"offset", offset,
		"retry_in", delay.String(),
		"error", err,
	)
}

// isPollTimeout reports transport timeouts that are expected with long polling.
func isPollTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// sleepContext waits for delay and reports false if ctx ended first.
func sleepContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
