package collector

import "sync/atomic"

// Metrics holds the collector counters. Each field is independently atomic;
// counters only ever increase.
type Metrics struct {
	eventsCollected  atomic.Uint64
	batchesCollected atomic.Uint64
	errors           atomic.Uint64
	eventsSuppressed atomic.Uint64
	eventsAbandoned  atomic.Uint64
}

// Snapshot is a point-in-time copy of Metrics, shaped for the metrics endpoint.
type Snapshot struct {
	EventsCollected  uint64 `json:"events_collected"`
	BatchesCollected uint64 `json:"batches_collected"`
	Errors           uint64 `json:"errors"`
	EventsSuppressed uint64 `json:"events_suppressed"`
	EventsAbandoned  uint64 `json:"events_abandoned"`
}

func (m *Metrics) EventsCollected() uint64  { return m.eventsCollected.Load() }
func (m *Metrics) BatchesCollected() uint64 { return m.batchesCollected.Load() }
func (m *Metrics) Errors() uint64           { return m.errors.Load() }
func (m *Metrics) EventsSuppressed() uint64 { return m.eventsSuppressed.Load() }
func (m *Metrics) EventsAbandoned() uint64  { return m.eventsAbandoned.Load() }

// Abandon records envelopes that were collected but will never reach storage
// because the processor stopped on a failure.
func (m *Metrics) Abandon(n int) {
	if n > 0 {
		m.eventsAbandoned.Add(uint64(n))
	}
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		EventsCollected:  m.eventsCollected.Load(),
		BatchesCollected: m.batchesCollected.Load(),
		Errors:           m.errors.Load(),
		EventsSuppressed: m.eventsSuppressed.Load(),
		EventsAbandoned:  m.eventsAbandoned.Load(),
	}
}
