package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ex-tgbot/internal/driver"
	"ex-tgbot/internal/kernel"
	"ex-tgbot/internal/telemetry"
	"ex-tgbot/modules/help"
	"ex-tgbot/modules/pingpong"
	"ex-tgbot/pkg/tgbot"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName         = "tgbot"
	fallThroughPriority = 0
	telemetryTimeout    = 5 * time.Second
)

var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Priority-ordered Telegram update dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand())

	return root
}

func newRunCommand() *cobra.Command {
	var configPath string
	command := &cobra.Command{
		Use:   "run",
		Short: "Poll every configured bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, configPath, os.Stderr)
		},
	}
	command.Flags().StringVar(&configPath, "config", "", "config file (default: config/bot.yaml or ./bot.yaml)")

	return command
}

func run(ctx context.Context, configPath string, logOutput io.Writer) error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin transport registry: %w", err)
	}

	cfg, err := loadConfig(configPath, registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(logOutput, cfg.logFormat, cfg.logLevel)
	slog.SetDefault(logger)

	providers, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.telemetryEnabled,
		Stdout:      cfg.telemetryStdout,
		ServiceName: serviceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	runtimes, err := registry.BuildEnabled(ctx, cfg.bots, logger)
	if err != nil {
		return fmt.Errorf("build transports: %w", err)
	}

	services := make([]*kernel.Service, 0, len(runtimes))
	for _, runtime := range runtimes {
		service, err := buildService(runtime, cfg, logger, providers)
		if err != nil {
			return err
		}
		services = append(services, service)
	}

	return runServices(ctx, services)
}

// runServices runs every bot until ctx ends. A bot that fails to start stops the rest.
func runServices(ctx context.Context, services []*kernel.Service) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, service := range services {
		group.Go(func() error {
			return service.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("run bots: %w", err)
	}

	return nil
}

func buildService(
	runtime driver.Runtime,
	cfg appConfig,
	logger *slog.Logger,
	providers *telemetry.Providers,
) (*kernel.Service, error) {
	botLogger := logger.With("bot", runtime.Name, "transport", runtime.Type)

	container, err := buildContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build handlers for bot %s: %w", runtime.Name, err)
	}

	options := []kernel.Option{
		kernel.WithLogger(botLogger),
		kernel.WithScopedResolver(container),
		kernel.WithPollLimit(cfg.pollLimit),
		kernel.WithPollTimeout(cfg.pollTimeout),
		kernel.WithRetryBackoff(cfg.retryInitial, cfg.retryMax),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
	}
	if providers != nil {
		options = append(options,
			kernel.WithTracerProvider(providers.TracerProvider),
			kernel.WithMeterProvider(providers.MeterProvider),
		)
	}

	service, err := kernel.New(runtime.Client, runtime.Client, options...)
	if err != nil {
		return nil, fmt.Errorf("new service for bot %s: %w", runtime.Name, err)
	}
	if err := registerStaticHandlers(service, botLogger); err != nil {
		return nil, fmt.Errorf("register handlers for bot %s: %w", runtime.Name, err)
	}

	return service, nil
}

// buildContainer registers per-update handlers. Each dispatch gets fresh instances.
func buildContainer(cfg appConfig) (*kernel.Container, error) {
	container := kernel.NewContainer()
	if err := container.AddScoped(pingpong.New().Name(), func(context.Context) (tgbot.Handler, error) {
		return tgbot.WithTimeout(pingpong.New(), cfg.handlerTimeout), nil
	}); err != nil {
		return nil, fmt.Errorf("add pingpong handler: %w", err)
	}

	return container, nil
}

func registerStaticHandlers(service *kernel.Service, logger *slog.Logger) error {
	if err := service.RegisterStatic(tgbot.WithFallThroughLog(nil, logger, fallThroughPriority)); err != nil {
		return fmt.Errorf("register fall-through log: %w", err)
	}
	if err := service.RegisterStatic(help.New(pingpong.New().Commands()...)); err != nil {
		return fmt.Errorf("register help handler: %w", err)
	}

	return nil
}

func newLogger(output io.Writer, format string, level slog.Level) *slog.Logger {
	if format == "text" {
		return slog.New(tint.NewHandler(output, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}

	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}
