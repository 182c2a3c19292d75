package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/analytics/internal/domain"
)

func env(mid string) *domain.EventEnvelope {
	return domain.NewEnvelope(mid, &domain.SessionStart{})
}

func receive(t *testing.T, q *Queue) *domain.EventEnvelope {
	t.Helper()
	select {
	case e, ok := <-q.C():
		require.True(t, ok, "queue closed unexpectedly")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

// settle waits until the pump has taken the head and is blocked on delivery.
func settle(t *testing.T, q *Queue) {
	t.Helper()
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"unbounded", "block", "reject", "drop_oldest"} {
		p, err := ParsePolicy(s)
		require.NoError(t, err)
		assert.Equal(t, Policy(s), p)
	}

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Unbounded, p)

	_, err = ParsePolicy("lossy")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestUnbounded_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	q := New(Unbounded, 0)

	var sent []*domain.EventEnvelope
	for i := 0; i < 1000; i++ {
		e := env("G-1")
		sent = append(sent, e)
		require.NoError(t, q.Publish(ctx, e))
	}
	q.Close()

	var got []*domain.EventEnvelope
	for e := range q.C() {
		got = append(got, e)
	}
	assert.Equal(t, sent, got)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	q := New(Unbounded, 0)
	first := env("G-1")
	require.NoError(t, q.Publish(ctx, first))

	q.Close()
	q.Close()

	err := q.Publish(ctx, env("G-1"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, domain.ErrChannelClosed)

	assert.Same(t, first, receive(t, q))
	_, ok := <-q.C()
	assert.False(t, ok)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	q := New(Reject, 2)
	a, b, c := env("a"), env("b"), env("c")

	require.NoError(t, q.Publish(ctx, a))
	settle(t, q)
	require.NoError(t, q.Publish(ctx, b))
	require.NoError(t, q.Publish(ctx, c))

	err := q.Publish(ctx, env("d"))
	assert.ErrorIs(t, err, ErrFull)
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	assert.Same(t, a, receive(t, q))
	assert.Same(t, b, receive(t, q))
	assert.Same(t, c, receive(t, q))
}

func TestDropOldest(t *testing.T) {
	ctx := context.Background()
	q := New(DropOldest, 2)
	a, b, c, d := env("a"), env("b"), env("c"), env("d")

	require.NoError(t, q.Publish(ctx, a))
	settle(t, q)
	require.NoError(t, q.Publish(ctx, b))
	require.NoError(t, q.Publish(ctx, c))
	require.NoError(t, q.Publish(ctx, d))

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())
	assert.Same(t, a, receive(t, q))
	assert.Same(t, c, receive(t, q))
	assert.Same(t, d, receive(t, q))
}

func TestBlock(t *testing.T) {
	t.Run("waits for space", func(t *testing.T) {
		ctx := context.Background()
		q := New(Block, 1)
		a, b, c := env("a"), env("b"), env("c")

		require.NoError(t, q.Publish(ctx, a))
		settle(t, q)
		require.NoError(t, q.Publish(ctx, b))

		done := make(chan error, 1)
		go func() { done <- q.Publish(ctx, c) }()

		select {
		case <-done:
			t.Fatal("publish should block while the queue is full")
		case <-time.After(50 * time.Millisecond):
		}

		assert.Same(t, a, receive(t, q))
		require.NoError(t, <-done)
		assert.Same(t, b, receive(t, q))
		assert.Same(t, c, receive(t, q))
	})

	t.Run("honours context", func(t *testing.T) {
		q := New(Block, 1)
		require.NoError(t, q.Publish(context.Background(), env("a")))
		settle(t, q)
		require.NoError(t, q.Publish(context.Background(), env("b")))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := q.Publish(ctx, env("c"))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("close releases blocked producer", func(t *testing.T) {
		q := New(Block, 1)
		require.NoError(t, q.Publish(context.Background(), env("a")))
		settle(t, q)
		require.NoError(t, q.Publish(context.Background(), env("b")))

		done := make(chan error, 1)
		go func() { done <- q.Publish(context.Background(), env("c")) }()
		time.Sleep(10 * time.Millisecond)
		q.Close()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("blocked producer was not released")
		}
	})
}

func TestDiscard(t *testing.T) {
	// Arrange
	ctx := context.Background()
	q := New(Unbounded, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Publish(ctx, env("G-1")))
	}
	// one envelope is now held by the pump
	require.Eventually(t, func() bool { return q.Len() == 3 }, time.Second, time.Millisecond)

	// Act
	n := q.Discard()

	// Assert
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, q.Len())
	_, ok := <-q.C()
	assert.False(t, ok)
	assert.ErrorIs(t, q.Publish(ctx, env("G-1")), ErrClosed)
}
