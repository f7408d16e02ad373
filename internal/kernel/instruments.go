package kernel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ex-tgbot/internal/kernel"

var (
	attrUpdateID     = attribute.Key("tgbot.update.id")
	attrUpdateType   = attribute.Key("tgbot.update.type")
	attrHandler      = attribute.Key("tgbot.handler")
	attrPriority     = attribute.Key("tgbot.handler.priority")
	attrOutcome      = attribute.Key("tgbot.outcome")
	attrInvocations  = attribute.Key("tgbot.dispatch.invocations")
	attrFetchedCount = attribute.Key("tgbot.fetch.count")
	attrOffset       = attribute.Key("tgbot.fetch.offset")
)

// instruments groups the tracer and metric instruments used by dispatch and polling.
type instruments struct {
	tracer trace.Tracer

	updatesDispatched metric.Int64Counter
	updatesClaimed    metric.Int64Counter
	updatesUnclaimed  metric.Int64Counter
	handlerFailures   metric.Int64Counter
	fetchFailures     metric.Int64Counter
	dispatchDuration  metric.Float64Histogram
}

// newInstruments builds instruments from the configured providers. An
// instrument that cannot be created degrades to a no-op.
func newInstruments(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) *instruments {
	meter := meterProvider.Meter(instrumentationName)
	ins := &instruments{
		tracer: tracerProvider.Tracer(instrumentationName),
	}

	ins.updatesDispatched = int64Counter(meter, "tgbot.updates.dispatched", "Number of updates offered to the handler chain", "{update}")
	ins.updatesClaimed = int64Counter(meter, "tgbot.updates.claimed", "Number of updates claimed by a handler", "{update}")
	ins.updatesUnclaimed = int64Counter(meter, "tgbot.updates.unclaimed", "Number of updates no handler claimed", "{update}")
	ins.handlerFailures = int64Counter(meter, "tgbot.handler.failures", "Number of handler invocations that failed", "{invocation}")
	ins.fetchFailures = int64Counter(meter, "tgbot.fetch.failures", "Number of failed update fetches", "{fetch}")

	histogram, err := meter.Float64Histogram(
		"tgbot.dispatch.duration",
		metric.WithDescription("Time spent walking the handler chain for one update"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		histogram = metricnoop.Float64Histogram{}
	}
	ins.dispatchDuration = histogram

	return ins
}

func int64Counter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return metricnoop.Int64Counter{}
	}

	return counter
}
