package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/analytics/internal/domain"
)

const dayLayout = "2006-01-02"

// Counter keeps realtime per-site, per-day event counts in Redis. It is
// attached to the processor as a flush observer, so only stored events count.
type Counter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCounter(addr, password string, db int, ttl time.Duration) *Counter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Counter{client: rdb, ttl: ttl}
}

func dayKey(measurementID string, day time.Time) string {
	return fmt.Sprintf("events:%s:%s", measurementID, day.UTC().Format(dayLayout))
}

func typesKey(measurementID string, day time.Time) string {
	return dayKey(measurementID, day) + ":types"
}

type tally struct {
	measurementID string
	day           time.Time
	total         int64
	byType        map[domain.Kind]int64
}

// tallyBatch groups a batch by site and UTC day, keeping first-seen order.
func tallyBatch(batch domain.EventBatch) []*tally {
	var out []*tally
	index := map[string]*tally{}
	for _, env := range batch.Events {
		k := dayKey(env.MeasurementID, env.Timestamp)
		t, ok := index[k]
		if !ok {
			t = &tally{measurementID: env.MeasurementID, day: env.Timestamp, byType: map[domain.Kind]int64{}}
			index[k] = t
			out = append(out, t)
		}
		t.total++
		t.byType[env.Event.Kind()]++
	}
	return out
}

func (c *Counter) OnFlush(ctx context.Context, batch domain.EventBatch) error {
	if batch.Size() == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, t := range tallyBatch(batch) {
		total, types := dayKey(t.measurementID, t.day), typesKey(t.measurementID, t.day)
		pipe.IncrBy(ctx, total, t.total)
		for kind, n := range t.byType {
			pipe.HIncrBy(ctx, types, string(kind), n)
		}
		pipe.Expire(ctx, total, c.ttl)
		pipe.Expire(ctx, types, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis counters: %w", err)
	}
	return nil
}

// Count returns the number of events stored for a site on the given day.
func (c *Counter) Count(ctx context.Context, measurementID string, day time.Time) (int64, error) {
	n, err := c.client.Get(ctx, dayKey(measurementID, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// CountByType returns the per event type breakdown for a site and day.
func (c *Counter) CountByType(ctx context.Context, measurementID string, day time.Time) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, typesKey(measurementID, day)).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(raw)
}

func parseCounts(raw map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func (c *Counter) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Counter) Close() error { return c.client.Close() }
