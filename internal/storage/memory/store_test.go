package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/analytics/internal/domain"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and looks up", func(t *testing.T) {
		s := New()
		a := domain.NewEnvelope("G-1", &domain.SessionStart{})
		b := domain.NewEnvelope("G-1", &domain.Search{SearchTerm: "x"})

		require.NoError(t, s.StoreEvents(ctx, []*domain.EventEnvelope{a, b}))
		require.NoError(t, s.StoreEvents(ctx, []*domain.EventEnvelope{a}))

		got, err := s.GetEvent(ctx, b.EventID)
		require.NoError(t, err)
		assert.Same(t, b, got)
		assert.Equal(t, []*domain.EventEnvelope{a, b}, s.All())
	})

	t.Run("absent id is not an error", func(t *testing.T) {
		got, err := New().GetEvent(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("purges old envelopes", func(t *testing.T) {
		s := New()
		old := domain.NewEnvelope("G-1", &domain.SessionStart{})
		old.Timestamp = time.Now().Add(-400 * 24 * time.Hour)
		fresh := domain.NewEnvelope("G-1", &domain.SessionStart{})
		require.NoError(t, s.StoreEvents(ctx, []*domain.EventEnvelope{old, fresh}))

		n, err := s.PurgeBefore(ctx, time.Now().AddDate(0, 0, -365))

		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, []*domain.EventEnvelope{fresh}, s.All())
	})
}
