package kernel

import (
	"context"
	"log/slog"
	"time"

	"ex-tgbot/pkg/tgbot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollLimit       = 100
	defaultPollTimeout     = 30 * time.Second
	defaultRetryInitial    = 500 * time.Millisecond
	defaultRetryMax        = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	maxPollLimit           = 100
)

// ErrorReporter receives handler failures that dispatch recovered from.
type ErrorReporter func(ctx context.Context, scope string, err error)

// config stores resolved runtime settings after option application.
type config struct {
	logger          *slog.Logger
	onError         ErrorReporter
	resolver        tgbot.ScopedResolver
	pollLimit       int
	pollTimeout     time.Duration
	initialOffset   int64
	allowedUpdates  []string
	retryInitial    time.Duration
	retryMax        time.Duration
	shutdownTimeout time.Duration
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	onStateChange   func(PollerState)
}

// Option mutates runtime construction configuration.
type Option func(*config)

// defaultConfig returns production-safe defaults.
func defaultConfig() config {
	logger := slog.Default()

	return config{
		logger:          logger,
		onError:         loggingReporter(logger),
		pollLimit:       defaultPollLimit,
		pollTimeout:     defaultPollTimeout,
		retryInitial:    defaultRetryInitial,
		retryMax:        defaultRetryMax,
		shutdownTimeout: defaultShutdownTimeout,
		tracerProvider:  otel.GetTracerProvider(),
		meterProvider:   otel.GetMeterProvider(),
	}
}

func newConfig(options []Option) config {
	cfg := defaultConfig()
	for _, option := range options {
		if option != nil {
			option(&cfg)
		}
	}

	return cfg
}

func loggingReporter(logger *slog.Logger) ErrorReporter {
	return func(ctx context.Context, scope string, err error) {
		logger.ErrorContext(ctx, "tgbot handler error", "scope", scope, "error", err)
	}
}

// WithLogger configures the logger used by the runtime and the default error reporter.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger == nil {
			return
		}

		cfg.logger = logger
		cfg.onError = loggingReporter(logger)
	}
}

// WithErrorReporter overrides where recovered handler failures are reported.
// Apply it after WithLogger, which resets the reporter.
func WithErrorReporter(reporter ErrorReporter) Option {
	return func(cfg *config) {
		if reporter != nil {
			cfg.onError = reporter
		}
	}
}

// WithScopedResolver configures the per-dispatch handler source.
func WithScopedResolver(resolver tgbot.ScopedResolver) Option {
	return func(cfg *config) {
		cfg.resolver = resolver
	}
}

// WithPollLimit bounds how many updates one fetch may return (1..100).
func WithPollLimit(limit int) Option {
	return func(cfg *config) {
		if limit > 0 {
			cfg.pollLimit = min(limit, maxPollLimit)
		}
	}
}

// WithPollTimeout configures the long-poll wait per fetch.
func WithPollTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout >= 0 {
			cfg.pollTimeout = timeout
		}
	}
}

// WithInitialOffset seeds the fetch cursor.
func WithInitialOffset(offset int64) Option {
	return func(cfg *config) {
		if offset >= 0 {
			cfg.initialOffset = offset
		}
	}
}

// WithAllowedUpdates restricts fetched update types; empty means all.
func WithAllowedUpdates(types ...string) Option {
	return func(cfg *config) {
		cfg.allowedUpdates = append([]string(nil), types...)
	}
}

// WithRetryBackoff configures the exponential delay between failed fetches.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(cfg *config) {
		if initial > 0 {
			cfg.retryInitial = initial
		}
		if maxDelay > 0 {
			cfg.retryMax = maxDelay
		}
		if cfg.retryMax < cfg.retryInitial {
			cfg.retryMax = cfg.retryInitial
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for the loop to unwind.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.shutdownTimeout = timeout
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// WithStateHook registers a callback invoked on every poller state transition.
// It runs on the poll goroutine and must not block.
func WithStateHook(hook func(PollerState)) Option {
	return func(cfg *config) {
		cfg.onStateChange = hook
	}
}
