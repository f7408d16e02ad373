// Package telemetry installs the OpenTelemetry providers used by the dispatcher.
//
// Telemetry is off by default: Init then installs no-op providers. When enabled,
// spans and metrics are pretty-printed as JSON to the configured writer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const defaultMetricInterval = 15 * time.Second

// Config selects the telemetry exporters.
type Config struct {
	// Enabled turns on the SDK providers.
	Enabled bool
	// Stdout writes to standard output instead of standard error.
	Stdout bool
	// Writer overrides the export destination.
	Writer io.Writer
	// ServiceName and Version are attached as resource attributes.
	ServiceName string
	Version     string
	// MetricInterval is the periodic metric export interval.
	MetricInterval time.Duration
}

// Providers holds the installed providers and their shutdown hooks.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdownFns []func(context.Context) error
}

// Init builds providers from cfg and installs them as the otel globals.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		providers := &Providers{
			TracerProvider: tracenoop.NewTracerProvider(),
			MeterProvider:  metricnoop.NewMeterProvider(),
		}
		providers.install()
		return providers, nil
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
		if cfg.Stdout {
			writer = os.Stdout
		}
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExporter),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer), stdoutmetric.WithPrettyPrint())
	if err != nil {
		shutdownErr := tracerProvider.Shutdown(ctx)
		return nil, errors.Join(fmt.Errorf("telemetry metric exporter: %w", err), shutdownErr)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)

	providers := &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		shutdownFns:    []func(context.Context) error{tracerProvider.Shutdown, meterProvider.Shutdown},
	}
	providers.install()

	return providers, nil
}

func (p *Providers) install() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
}

// Shutdown flushes pending spans and metrics. It is safe to call on no-op providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	for _, fn := range p.shutdownFns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdownFns = nil

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}

	return nil
}
