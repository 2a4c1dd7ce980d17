package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func observedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func TestNewGormLogger_Defaults(t *testing.T) {
	gl, _ := observedGorm(gormlogger.Warn)

	assert.Equal(t, gormlogger.Warn, gl.level)
	assert.Equal(t, defaultSlowThreshold, gl.slow)
	assert.False(t, gl.reportNotFound)

	gl, _ = observedGorm(gormlogger.Warn, WithSlowThreshold(time.Second), WithIgnoreRecordNotFoundError(false))
	assert.Equal(t, time.Second, gl.slow)
	assert.True(t, gl.reportNotFound)
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := observedGorm(gormlogger.Info)

	quiet, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Error, quiet.level)
	assert.Equal(t, gormlogger.Info, gl.level)
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := observedGorm(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrated %d tables", 4)
	gl.Warn(ctx, "dropping index %s", "idx_sync_refs_remote")
	gl.Error(ctx, "boom")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "dropping index idx_sync_refs_remote", logs[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
	assert.Equal(t, "gorm", logs[0].LoggerName)
}

func TestGormLogger_Trace(t *testing.T) {
	statement := func() (string, int64) { return `SELECT * FROM "sync_refs" WHERE remote_id = '42'`, 1 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		elapsed time.Duration
		err     error
		message string
		lvl     zapcore.Level
	}{
		{name: "query at info", level: gormlogger.Info, message: "SQL Query", lvl: zapcore.DebugLevel},
		{name: "query at warn is dropped", level: gormlogger.Warn},
		{name: "silent drops errors", level: gormlogger.Silent, err: errors.New("db down")},
		{name: "error", level: gormlogger.Error, err: errors.New("db down"), message: "SQL Error", lvl: zapcore.ErrorLevel},
		{name: "not found ignored", level: gormlogger.Info, err: gormlogger.ErrRecordNotFound, message: "SQL Query", lvl: zapcore.DebugLevel},
		{
			name: "not found reported", level: gormlogger.Error, err: gormlogger.ErrRecordNotFound,
			opts: []GormLoggerOption{WithIgnoreRecordNotFoundError(false)}, message: "SQL Error", lvl: zapcore.ErrorLevel,
		},
		{
			name: "slow", level: gormlogger.Warn, elapsed: time.Second,
			opts: []GormLoggerOption{WithSlowThreshold(10 * time.Millisecond)}, message: "Slow SQL", lvl: zapcore.WarnLevel,
		},
		{
			name: "slow disabled", level: gormlogger.Warn, elapsed: time.Second,
			opts: []GormLoggerOption{WithSlowThreshold(0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := observedGorm(tt.level, tt.opts...)
			gl.Trace(context.Background(), time.Now().Add(-tt.elapsed), statement, tt.err)

			if tt.message == "" {
				assert.Empty(t, recorded.All())
				return
			}
			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.message, logs[0].Message)
			assert.Equal(t, tt.lvl, logs[0].Level)
			assert.Contains(t, logs[0].ContextMap()["sql"], "sync_refs")
		})
	}
}

func TestGormLogger_TraceCarriesSyncContext(t *testing.T) {
	gl, recorded := observedGorm(gormlogger.Info)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, JobIDKey, "job-77")
	ctx = context.WithValue(ctx, InstanceIDKey, "inst-3")
	gl.Trace(ctx, time.Now(), func() (string, int64) {
		return `UPDATE "sync_jobs" SET "status"='cancelling'`, 1
	}, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "job-77", fields["job_id"])
	assert.Equal(t, "inst-3", fields["instance_id"])
	assert.NotContains(t, fields, "operator")
	assert.EqualValues(t, 1, fields["rows"])
}

func TestMapGormLogLevel(t *testing.T) {
	for level, want := range map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"fatal":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"verbose": gormlogger.Warn,
		"":        gormlogger.Warn,
	} {
		assert.Equal(t, want, MapGormLogLevel(level), level)
	}
}
