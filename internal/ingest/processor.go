package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/logger"
)

const instrumentationName = "example.com/analytics/internal/ingest"

type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Store persists one batch atomically.
type Store interface {
	StoreEvents(ctx context.Context, batch []*domain.EventEnvelope) error
}

// Enricher may add derived data to an envelope before it is buffered.
type Enricher interface {
	Enrich(ctx context.Context, env *domain.EventEnvelope)
}

type NoopEnricher struct{}

func (NoopEnricher) Enrich(context.Context, *domain.EventEnvelope) {}

// FlushObserver is told about every batch that was stored. Its errors are
// logged and never stop the processor.
type FlushObserver interface {
	OnFlush(ctx context.Context, batch domain.EventBatch) error
}

type Option func(*Processor)

func WithEnricher(e Enricher) Option { return func(p *Processor) { p.enricher = e } }

func WithObserver(o FlushObserver) Option { return func(p *Processor) { p.observer = o } }

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) { p.meter = mp.Meter(instrumentationName) }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Processor) { p.tracer = tp.Tracer(instrumentationName) }
}

// Processor drains the queue into a buffer and stores it in batches, either
// when the buffer is full or when the flush interval has passed since the
// first buffered envelope.
type Processor struct {
	in        <-chan *domain.EventEnvelope
	store     Store
	batchSize int
	interval  time.Duration
	enricher  Enricher
	observer  FlushObserver
	log       *zap.Logger
	throttle  *logger.Throttler
	state     atomic.Int32

	meter         metric.Meter
	tracer        trace.Tracer
	flushes       metric.Int64Counter
	flushedEvents metric.Int64Counter
	flushErrors   metric.Int64Counter
	flushDuration metric.Float64Histogram
}

func New(in <-chan *domain.EventEnvelope, store Store, batchSize int, interval time.Duration, log *zap.Logger, opts ...Option) (*Processor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", domain.ErrConfiguration)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: flush interval must be positive", domain.ErrConfiguration)
	}
	log = log.With(zap.String("component", "processor"))
	p := &Processor{
		in:        in,
		store:     store,
		batchSize: batchSize,
		interval:  interval,
		enricher:  NoopEnricher{},
		log:       log,
		throttle:  logger.NewThrottler(log, time.Minute),
		meter:     otel.Meter(instrumentationName),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Processor) initInstruments() error {
	var err error
	if p.flushes, err = p.meter.Int64Counter("analytics.pipeline.flushes",
		metric.WithDescription("Batches handed to storage")); err != nil {
		return err
	}
	if p.flushedEvents, err = p.meter.Int64Counter("analytics.pipeline.flushed_events",
		metric.WithDescription("Envelopes stored by the processor")); err != nil {
		return err
	}
	if p.flushErrors, err = p.meter.Int64Counter("analytics.pipeline.flush_errors",
		metric.WithDescription("Batches the storage engine failed to persist")); err != nil {
		return err
	}
	p.flushDuration, err = p.meter.Float64Histogram("analytics.pipeline.flush_duration",
		metric.WithUnit("s"))
	return err
}

func (p *Processor) State() State { return State(p.state.Load()) }

// Run consumes until the input channel is closed, flushes what is left and
// returns. A storage failure ends Run with an error wrapping domain.ErrStorage;
// the failed batch is not retried. ctx is handed to storage calls only.
func (p *Processor) Run(ctx context.Context) error {
	p.state.Store(int32(Running))
	defer p.state.Store(int32(Stopped))

	p.log.Info("processor started",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("flush_interval", p.interval),
	)

	buf := make([]*domain.EventEnvelope, 0, p.batchSize)
	t := time.NewTimer(p.interval)
	defer t.Stop()
	armed := false

	stopTimer := func() {
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		armed = false
	}
	stopTimer()

	flush := func() error {
		if armed {
			stopTimer()
		}
		if len(buf) == 0 {
			return nil
		}
		batch := buf
		buf = make([]*domain.EventEnvelope, 0, p.batchSize)
		return p.flush(ctx, batch)
	}

	for {
		var tick <-chan time.Time
		if armed {
			tick = t.C
		}

		select {
		case env, ok := <-p.in:
			if !ok {
				p.state.Store(int32(Draining))
				p.log.Info("input closed, draining", zap.Int("buffered", len(buf)))
				if err := flush(); err != nil {
					return err
				}
				p.log.Info("processor stopped")
				return nil
			}

			p.enricher.Enrich(ctx, env)
			buf = append(buf, env)
			if len(buf) == 1 {
				t.Reset(p.interval)
				armed = true
			}
			if len(buf) >= p.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-tick:
			armed = false
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (p *Processor) flush(ctx context.Context, events []*domain.EventEnvelope) error {
	batch := domain.NewBatch(events)
	ctx, span := p.tracer.Start(ctx, "ingest.flush", trace.WithAttributes(
		attribute.Int("batch.size", batch.Size()),
		attribute.String("batch.id", batch.BatchID.String()),
	))
	defer span.End()

	for _, e := range events {
		e.Processed = true
	}

	start := time.Now()
	err := p.store.StoreEvents(ctx, batch.Events)
	p.flushDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		for _, e := range events {
			e.Processed = false
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.flushErrors.Add(ctx, 1)
		p.log.Error("batch store failed",
			zap.String("batch_id", batch.BatchID.String()),
			zap.Int("size", batch.Size()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: flush batch %s of %d events: %w", domain.ErrStorage, batch.BatchID, batch.Size(), err)
	}

	p.flushes.Add(ctx, 1)
	p.flushedEvents.Add(ctx, int64(batch.Size()))
	span.SetStatus(codes.Ok, "stored")
	p.log.Debug("batch stored",
		zap.String("batch_id", batch.BatchID.String()),
		zap.Int("size", batch.Size()),
		zap.Duration("took", time.Since(start)),
	)

	if p.observer != nil {
		if err := p.observer.OnFlush(ctx, batch); err != nil {
			p.throttle.Warn("flush-observer", "flush observer failed",
				zap.String("batch_id", batch.BatchID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
