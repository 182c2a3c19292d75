package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"example.com/analytics/internal/domain"
)

type recordingStore struct {
	mu      sync.Mutex
	batches [][]*domain.EventEnvelope
	err     error
}

func (s *recordingStore) StoreEvents(_ context.Context, batch []*domain.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]*domain.EventEnvelope(nil), batch...))
	return nil
}

func (s *recordingStore) snapshot() [][]*domain.EventEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]*domain.EventEnvelope(nil), s.batches...)
}

type recordingObserver struct {
	mu    sync.Mutex
	sizes []int
	err   error
}

func (o *recordingObserver) OnFlush(_ context.Context, b domain.EventBatch) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sizes = append(o.sizes, b.Size())
	return o.err
}

type countingEnricher struct{ n int }

func (e *countingEnricher) Enrich(_ context.Context, env *domain.EventEnvelope) {
	e.n++
	env.Event.Params().DeviceCategory = "enriched"
}

func envelopes(n int) []*domain.EventEnvelope {
	out := make([]*domain.EventEnvelope, n)
	for i := range out {
		out[i] = domain.NewEnvelope("G-1", &domain.Scroll{PercentScrolled: uint8(i)})
	}
	return out
}

func preloaded(events []*domain.EventEnvelope) <-chan *domain.EventEnvelope {
	ch := make(chan *domain.EventEnvelope, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &recordingStore{}, 0, time.Second, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = New(nil, &recordingStore{}, 10, 0, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRun_SizeTriggeredFlush(t *testing.T) {
	// Arrange
	events := envelopes(5)
	store := &recordingStore{}
	p, err := New(preloaded(events), store, 3, time.Hour, zap.NewNop())
	require.NoError(t, err)

	// Act
	err = p.Run(context.Background())

	// Assert
	require.NoError(t, err)
	batches := store.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, events[:3], batches[0])
	assert.Equal(t, events[3:], batches[1])
	for _, e := range events {
		assert.True(t, e.Processed)
	}
	assert.Equal(t, Stopped, p.State())
}

func TestRun_TimeTriggeredFlush(t *testing.T) {
	// Arrange
	in := make(chan *domain.EventEnvelope)
	store := &recordingStore{}
	p, err := New(in, store, 100, 20*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	// Act
	events := envelopes(2)
	in <- events[0]
	in <- events[1]

	// Assert
	require.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Running, p.State())

	close(in)
	require.NoError(t, <-done)

	batches := store.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, events, batches[0])
}

func TestRun_EmptyInput(t *testing.T) {
	store := &recordingStore{}
	p, err := New(preloaded(nil), store, 10, time.Hour, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, store.snapshot())
}

func TestRun_StorageFailure(t *testing.T) {
	// Arrange
	storeErr := errors.New("disk full")
	events := envelopes(4)
	store := &recordingStore{err: storeErr}
	p, err := New(preloaded(events), store, 2, time.Hour, zap.NewNop())
	require.NoError(t, err)

	// Act
	err = p.Run(context.Background())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, events[0].Processed)
	assert.Equal(t, Stopped, p.State())
}

func TestRun_ObserverAndEnricher(t *testing.T) {
	events := envelopes(3)
	store := &recordingStore{}
	obs := &recordingObserver{err: errors.New("redis down")}
	enr := &countingEnricher{}

	p, err := New(preloaded(events), store, 2, time.Hour, zap.NewNop(),
		WithObserver(obs), WithEnricher(enr))
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []int{2, 1}, obs.sizes)
	assert.Equal(t, 3, enr.n)
	assert.Equal(t, "enriched", events[2].Event.Params().DeviceCategory)
	assert.Len(t, store.snapshot(), 2)
}

func TestRun_RecordsMetrics(t *testing.T) {
	// Arrange
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	p, err := New(preloaded(envelopes(5)), &recordingStore{}, 2, time.Hour, zap.NewNop(), WithMeterProvider(mp))
	require.NoError(t, err)

	// Act
	require.NoError(t, p.Run(context.Background()))

	// Assert
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["analytics.pipeline.flushes"])
	assert.Equal(t, int64(5), sums["analytics.pipeline.flushed_events"])
	assert.Zero(t, sums["analytics.pipeline.flush_errors"])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "stopped", Stopped.String())
}
