package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newEnabledLogsProvider(t *testing.T) *LoggerProvider {
	t.Helper()
	ctx := context.Background()
	// the exporter dials lazily, so no collector is needed
	lp, err := NewLoggerProvider(ctx, Config{
		Enabled:           true,
		CollectorEndpoint: "localhost:19999",
		ServiceName:       "shopsync-test",
		Insecure:          true,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(ctx) })
	return lp
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, Config{CollectorEndpoint: "localhost:14317"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
	assert.False(t, lp.otelCore("svc", zapcore.ErrorLevel).Enabled(zapcore.ErrorLevel))
}

func TestLoggerProvider_NilIsDisabled(t *testing.T) {
	var lp *LoggerProvider
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLoggerProvider_OtelCoreLevel(t *testing.T) {
	lp := newEnabledLogsProvider(t)

	debugCore := lp.otelCore("svc", zapcore.DebugLevel)
	assert.True(t, debugCore.Enabled(zapcore.DebugLevel))

	warnCore := lp.otelCore("svc", zapcore.WarnLevel)
	_, filtered := warnCore.(*levelFilterCore)
	assert.True(t, filtered)
	assert.False(t, warnCore.Enabled(zapcore.InfoLevel))
	assert.True(t, warnCore.Enabled(zapcore.WarnLevel))
}

func TestLevelFilterCore(t *testing.T) {
	observedCore, logs := observer.New(zapcore.DebugLevel)
	filtered := &levelFilterCore{Core: observedCore, minLevel: zapcore.WarnLevel}

	logger := zap.New(filtered.With([]zapcore.Field{zap.String("instance_id", "i-1")}))
	logger.Debug("page fetched")
	logger.Info("record created")
	logger.Warn("rate limited")
	logger.Error("job failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "rate limited", entries[0].Message)
	assert.Equal(t, "job failed", entries[1].Message)
	assert.Equal(t, "i-1", entries[0].ContextMap()["instance_id"])
}

func TestBridge(t *testing.T) {
	t.Run("returns base logger when export is disabled", func(t *testing.T) {
		base := zap.NewNop()
		assert.Same(t, base, Bridge(base, nil, "svc"))

		lp, err := NewLoggerProvider(context.Background(), Config{}, zap.NewNop())
		require.NoError(t, err)
		assert.Same(t, base, Bridge(base, lp, "svc"))
	})

	t.Run("tees to base and exporter", func(t *testing.T) {
		observedCore, logs := observer.New(zapcore.InfoLevel)
		base := zap.New(observedCore)

		bridged := Bridge(base, newEnabledLogsProvider(t), "svc")
		require.NotSame(t, base, bridged)

		bridged.Debug("hidden")
		bridged.Info("job started", zap.String("job_id", "j-1"))

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, "job started", entries[0].Message)
		assert.False(t, bridged.Core().Enabled(zapcore.DebugLevel))
	})
}
