package kernel

import (
	"context"
	"fmt"
	"sync"

	"ex-tgbot/pkg/tgbot"
)

// Service owns one bot's poll loop and its static handler registry.
type Service struct {
	cfg      config
	registry *HandlerRegistry
	poller   *Poller

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a service polling source and exposing bot to handlers.
func New(source tgbot.UpdateSource, bot tgbot.Bot, options ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("new service: nil update source")
	}

	cfg := newConfig(options)
	ins := newInstruments(cfg.tracerProvider, cfg.meterProvider)
	registry := NewHandlerRegistry()
	poller, err := newPoller(cfg, source, bot, registry, newDispatcher(cfg, ins), ins)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		poller:   poller,
	}, nil
}

// RegisterStatic adds a handler that takes part in every dispatch.
func (s *Service) RegisterStatic(handler tgbot.Handler) error {
	return s.registry.Register(handler)
}

// UnregisterStatic removes a handler previously passed to RegisterStatic.
func (s *Service) UnregisterStatic(handler tgbot.Handler) bool {
	return s.registry.Unregister(handler)
}

// Registry exposes the static handler registry.
func (s *Service) Registry() *HandlerRegistry {
	return s.registry
}

// Offset returns the poll cursor.
func (s *Service) Offset() int64 {
	return s.poller.Offset()
}

// State returns the poll loop state.
func (s *Service) State() PollerState {
	return s.poller.State()
}

// Start launches the poll loop in the background and returns immediately.
//
// The loop keeps running after ctx is canceled; only Stop ends it. A canceled
// ctx at call time leaves the loop unstarted.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return fmt.Errorf("start service: %w", tgbot.ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer s.release(done)
		defer close(done)
		defer cancel()

		if err := s.poller.Run(runCtx); err != nil {
			s.cfg.logger.ErrorContext(runCtx, "poll loop exited", "error", err)
		}
	}()

	return nil
}

// Stop cancels the poll loop and waits until it unwinds or ctx expires.
// Stopping a service that is not running is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	s.cfg.logger.InfoContext(ctx, "service is shutting down", "offset", s.poller.Offset())
	cancel()

	select {
	case <-done:
		s.release(done)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop service: %w", ctx.Err())
	}
}

// Run starts the service and blocks until ctx is canceled, then stops it
// within the configured shutdown timeout.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		if isContextCancellation(err) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-done:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.shutdownTimeout)
	defer cancel()

	return s.Stop(stopCtx)
}

// release clears the running state once the loop identified by done exits.
func (s *Service) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == done {
		s.cancel = nil
		s.done = nil
	}
}
