package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Throttler logs a WARN at most once per interval per key and downgrades
// the rest to DEBUG. Used for repeated failures on hot paths.
type Throttler struct {
	log      *zap.Logger
	limiters sync.Map // map[string]*rate.Limiter
	interval time.Duration
}

// NewThrottler defaults interval to one minute when zero.
func NewThrottler(log *zap.Logger, interval time.Duration) *Throttler {
	if interval == 0 {
		interval = time.Minute
	}
	return &Throttler{log: log, interval: interval}
}

func (t *Throttler) Warn(key, msg string, fields ...zap.Field) {
	if t.limiter(key).Allow() {
		t.log.Warn(msg, fields...)
	} else {
		t.log.Debug(msg, fields...)
	}
}

func (t *Throttler) limiter(key string) *rate.Limiter {
	if l, ok := t.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Every(t.interval), 1)
	actual, _ := t.limiters.LoadOrStore(key, l)
	return actual.(*rate.Limiter)
}
