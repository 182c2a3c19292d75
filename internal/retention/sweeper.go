package retention

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/storage"
)

// Policy turns "now" into the oldest timestamp that must be kept.
type Policy interface {
	RetentionCutoff(now time.Time) time.Time
}

// Sweeper periodically deletes stored events older than the retention window.
type Sweeper struct {
	purger   storage.Purger
	policy   Policy
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func New(purger storage.Purger, policy Policy, interval time.Duration, log *zap.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: retention interval must be positive", domain.ErrConfiguration)
	}
	return &Sweeper{
		purger:   purger,
		policy:   policy,
		interval: interval,
		log:      log.With(zap.String("component", "retention")),
		now:      time.Now,
	}, nil
}

// Sweep runs one purge pass and returns the number of deleted events.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.policy.RetentionCutoff(s.now())
	n, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: purge before %s: %w", domain.ErrStorage, cutoff.Format(time.RFC3339), err)
	}
	s.log.Info("retention sweep", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// Run sweeps once immediately and then on every interval until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("retention sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
