package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"example.com/analytics/internal/collector"
)

const instrumentationName = "example.com/analytics/internal/telemetry"

// QueueStats is the read side of the channel between collector and processor.
type QueueStats interface {
	Len() int
	Dropped() uint64
}

// RegisterPipeline exports the collector counters and queue depth as
// asynchronous instruments read on every collection cycle.
func RegisterPipeline(mp metric.MeterProvider, m *collector.Metrics, q QueueStats) (metric.Registration, error) {
	meter := mp.Meter(instrumentationName)

	events, err := meter.Int64ObservableCounter("analytics.collector.events",
		metric.WithDescription("Events handled by the collector, by outcome"))
	if err != nil {
		return nil, err
	}
	batches, err := meter.Int64ObservableCounter("analytics.collector.batches",
		metric.WithDescription("Batches fully collected"))
	if err != nil {
		return nil, err
	}
	depth, err := meter.Int64ObservableGauge("analytics.queue.length",
		metric.WithDescription("Envelopes waiting for the processor"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64ObservableCounter("analytics.queue.dropped",
		metric.WithDescription("Envelopes evicted under the drop_oldest policy"))
	if err != nil {
		return nil, err
	}

	collected := metric.WithAttributes(attribute.String("outcome", "collected"))
	failed := metric.WithAttributes(attribute.String("outcome", "error"))
	suppressed := metric.WithAttributes(attribute.String("outcome", "suppressed"))
	abandoned := metric.WithAttributes(attribute.String("outcome", "abandoned"))

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := m.Snapshot()
		o.ObserveInt64(events, int64(s.EventsCollected), collected)
		o.ObserveInt64(events, int64(s.Errors), failed)
		o.ObserveInt64(events, int64(s.EventsSuppressed), suppressed)
		o.ObserveInt64(events, int64(s.EventsAbandoned), abandoned)
		o.ObserveInt64(batches, int64(s.BatchesCollected))
		o.ObserveInt64(depth, int64(q.Len()))
		o.ObserveInt64(dropped, int64(q.Dropped()))
		return nil
	}, events, batches, depth, dropped)
}
