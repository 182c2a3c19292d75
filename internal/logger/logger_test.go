package logger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"example.com/analytics/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("builds logger with parsed level", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "app.log")

		l, err := New(config.Logger{Level: "warn", OutputPaths: []string{out}})

		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
		assert.Same(t, l, zap.L())
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(config.Logger{Level: "loud"})

		assert.Error(t, err)
	})
}

func TestContext(t *testing.T) {
	l := zap.NewNop()

	ctx := With(context.Background(), l)

	assert.Same(t, l, Get(ctx))
	assert.NotNil(t, Get(context.Background()))
	//nolint:staticcheck
	assert.NotNil(t, Get(nil))
}

func TestThrottler(t *testing.T) {
	t.Run("defaults interval", func(t *testing.T) {
		th := NewThrottler(zap.NewNop(), 0)
		assert.Equal(t, time.Minute, th.interval)
	})

	t.Run("first call warns then downgrades", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zapcore.DebugLevel)
		th := NewThrottler(zap.New(core), time.Hour)

		// Act
		th.Warn("flush", "first")
		th.Warn("flush", "second")
		th.Warn("other", "third")

		// Assert
		require.Equal(t, 3, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
		assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
		assert.Equal(t, zapcore.WarnLevel, logs.All()[2].Level)
	})
}
