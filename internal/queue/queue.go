package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"example.com/analytics/internal/domain"
)

type Policy string

const (
	// Unbounded never rejects or blocks a producer.
	Unbounded Policy = "unbounded"
	// Block makes Publish wait for free space or ctx cancellation.
	Block Policy = "block"
	// Reject fails Publish with ErrFull when at capacity.
	Reject Policy = "reject"
	// DropOldest evicts the head of the queue to make room and counts the loss.
	DropOldest Policy = "drop_oldest"
)

var (
	ErrClosed = fmt.Errorf("queue: %w", domain.ErrChannelClosed)
	ErrFull   = fmt.Errorf("queue: %w", domain.ErrQueueFull)
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case Unbounded, Block, Reject, DropOldest:
		return p, nil
	case "":
		return Unbounded, nil
	default:
		return "", fmt.Errorf("%w: unknown queue policy %q", domain.ErrConfiguration, s)
	}
}

// Queue is a multi-producer, single-consumer FIFO of envelopes. Items are
// delivered on C in publish order. After Close, C is closed once every
// queued item has been delivered.
type Queue struct {
	policy   Policy
	capacity int

	mu     sync.Mutex
	items  []*domain.EventEnvelope
	closed bool
	space  chan struct{} // closed and replaced whenever a slot frees up
	notify chan struct{}

	out     chan *domain.EventEnvelope
	dropped atomic.Uint64
}

// New starts the delivery goroutine. capacity is ignored for Unbounded.
func New(policy Policy, capacity int) *Queue {
	if policy != Unbounded && capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		policy:   policy,
		capacity: capacity,
		space:    make(chan struct{}),
		notify:   make(chan struct{}, 1),
		out:      make(chan *domain.EventEnvelope),
	}
	go q.pump()
	return q
}

func (q *Queue) Publish(ctx context.Context, env *domain.EventEnvelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if q.policy != Unbounded {
		for len(q.items) >= q.capacity {
			switch q.policy {
			case Reject:
				q.mu.Unlock()
				return ErrFull
			case DropOldest:
				q.items[0] = nil
				q.items = q.items[1:]
				q.dropped.Add(1)
			case Block:
				wait := q.space
				q.mu.Unlock()
				select {
				case <-wait:
				case <-ctx.Done():
					return ctx.Err()
				}
				q.mu.Lock()
				if q.closed {
					q.mu.Unlock()
					return ErrClosed
				}
			}
		}
	}

	q.items = append(q.items, env)
	q.mu.Unlock()
	q.wakePump()
	return nil
}

// Close stops intake. Items already queued are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.wakeProducers()
	}
	q.mu.Unlock()
	q.wakePump()
}

// Discard closes the queue and consumes every envelope still waiting for
// delivery, including the one the delivery goroutine holds. It is meant for a
// consumer that has stopped for good and returns how many envelopes it threw
// away. Discard must not run concurrently with another reader of C.
func (q *Queue) Discard() int {
	q.Close()
	n := 0
	for range q.out {
		n++
	}
	return n
}

func (q *Queue) C() <-chan *domain.EventEnvelope { return q.out }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped counts envelopes evicted under DropOldest.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

func (q *Queue) Policy() Policy { return q.policy }

func (q *Queue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.mu.Unlock()
			<-q.notify
			q.mu.Lock()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.wakeProducers()
		q.mu.Unlock()

		q.out <- head
	}
}

// wakeProducers must be called with mu held.
func (q *Queue) wakeProducers() {
	close(q.space)
	q.space = make(chan struct{})
}

func (q *Queue) wakePump() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
