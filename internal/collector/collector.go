package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/privacy"
)

// Filter transforms an envelope in place before it is published.
type Filter interface {
	Apply(ctx context.Context, env *domain.EventEnvelope) error
}

// Publisher hands envelopes to the processor. It must not wait on storage.
type Publisher interface {
	Publish(ctx context.Context, env *domain.EventEnvelope) error
}

// Collector is the pipeline ingress. It is safe for concurrent use.
type Collector struct {
	filter  Filter
	pub     Publisher
	metrics *Metrics
	log     *zap.Logger
}

func New(filter Filter, pub Publisher, log *zap.Logger) *Collector {
	return &Collector{
		filter:  filter,
		pub:     pub,
		metrics: &Metrics{},
		log:     log.With(zap.String("component", "collector")),
	}
}

// Outcome tells an accepted envelope apart from one dropped by Do-Not-Track.
type Outcome int

const (
	Enqueued Outcome = iota
	Suppressed
)

func (o Outcome) String() string {
	if o == Suppressed {
		return "suppressed"
	}
	return "accepted"
}

// Collect filters, validates and publishes one envelope. An envelope
// suppressed by Do-Not-Track is counted and reported as success.
func (c *Collector) Collect(ctx context.Context, env *domain.EventEnvelope) error {
	_, err := c.Track(ctx, env)
	return err
}

// Track is Collect that also reports whether the envelope was enqueued.
func (c *Collector) Track(ctx context.Context, env *domain.EventEnvelope) (Outcome, error) {
	if err := c.filter.Apply(ctx, env); err != nil {
		if errors.Is(err, privacy.ErrSuppressed) {
			c.metrics.eventsSuppressed.Add(1)
			return Suppressed, nil
		}
		c.metrics.errors.Add(1)
		c.log.Warn("privacy filter rejected event", zap.Error(err))
		return Enqueued, err
	}

	if err := domain.ValidateEnvelope(env); err != nil {
		c.metrics.errors.Add(1)
		return Enqueued, err
	}

	if err := c.pub.Publish(ctx, env); err != nil {
		c.metrics.errors.Add(1)
		return Enqueued, fmt.Errorf("publish event %s: %w", env.EventID, err)
	}

	c.metrics.eventsCollected.Add(1)
	return Enqueued, nil
}

// CollectBatch collects every envelope in order and stops at the first error.
// Envelopes before the failing one stay enqueued.
func (c *Collector) CollectBatch(ctx context.Context, batch domain.EventBatch) error {
	for i, env := range batch.Events {
		if err := c.Collect(ctx, env); err != nil {
			return fmt.Errorf("batch %s event %d: %w", batch.BatchID, i, err)
		}
	}
	c.metrics.batchesCollected.Add(1)
	return nil
}

func (c *Collector) Metrics() *Metrics { return c.metrics }
