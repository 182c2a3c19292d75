package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/privacy"
	"example.com/analytics/internal/queue"
)

type fixedQueue struct {
	length  int
	dropped uint64
}

func (q fixedQueue) Len() int        { return q.length }
func (q fixedQueue) Dropped() uint64 { return q.dropped }

func points(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var dps []metricdata.DataPoint[int64]
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				dps = d.DataPoints
			case metricdata.Gauge[int64]:
				dps = d.DataPoints
			}
			for _, dp := range dps {
				key := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok {
					key += "/" + v.AsString()
				}
				out[key] = dp.Value
			}
		}
	}
	return out
}

func TestRegisterPipeline(t *testing.T) {
	// Arrange
	filter, err := privacy.New(config.Default().Privacy)
	require.NoError(t, err)
	q := queue.New(queue.Unbounded, 0)
	t.Cleanup(q.Close)
	c := collector.New(filter, q, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, c.Collect(ctx, domain.NewEnvelope("G-1", &domain.SessionStart{})))
	require.NoError(t, c.Collect(ctx, domain.NewEnvelope("G-1", &domain.Search{SearchTerm: "go"})))
	require.Error(t, c.Collect(ctx, domain.NewEnvelope("", &domain.SessionStart{})))
	dnt := &domain.SessionStart{}
	dnt.DoNotTrack = true
	require.NoError(t, c.Collect(ctx, domain.NewEnvelope("G-1", dnt)))
	c.Metrics().Abandon(5)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	// Act
	reg, err := RegisterPipeline(mp, c.Metrics(), fixedQueue{length: 7, dropped: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Unregister() })

	// Assert
	got := points(t, reader)
	assert.Equal(t, int64(2), got["analytics.collector.events/collected"])
	assert.Equal(t, int64(1), got["analytics.collector.events/error"])
	assert.Equal(t, int64(1), got["analytics.collector.events/suppressed"])
	assert.Equal(t, int64(5), got["analytics.collector.events/abandoned"])
	assert.Equal(t, int64(0), got["analytics.collector.batches"])
	assert.Equal(t, int64(7), got["analytics.queue.length"])
	assert.Equal(t, int64(3), got["analytics.queue.dropped"])
}

func TestNewProviderRequiresEndpoint(t *testing.T) {
	_, err := NewProvider(context.Background(), config.Telemetry{Interval: 1})
	assert.Error(t, err)
}

func TestStartRuntimeMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	core, logs := observer.New(zap.WarnLevel)

	startRuntimeMetrics(mp, zap.New(core))

	assert.Zero(t, logs.Len())
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.NotEmpty(t, rm.ScopeMetrics)
}
