package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormLogger routes GORM output through zap. Statements issued inside a
// sync pass are tagged with the instance and job they ran for, so a slow
// page write can be traced back to its job from the log alone.
type GormLogger struct {
	log            *zap.Logger
	level          gormlogger.LogLevel
	slow           time.Duration
	reportNotFound bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which statements are logged
// as slow. Zero disables slow statement logging.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = threshold }
}

// WithIgnoreRecordNotFoundError controls whether lookups that find nothing
// are logged as errors. Ref and record lookups miss routinely, so they are
// ignored by default.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.reportNotFound = !ignore }
}

// NewGormLogger creates a GORM logger writing to the "gorm" child of log
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		log:   log.Named("gorm"),
		level: level,
		slow:  defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.contextual(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.contextual(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.contextual(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface. Failed statements log at error,
// slow ones at warn and everything else at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)

	var (
		msg  string
		emit func(string, ...zap.Field)
	)
	log := l.contextual(ctx)
	switch {
	case err != nil && l.level >= gormlogger.Error && (!notFound || l.reportNotFound):
		msg, emit = "SQL Error", log.Error
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		msg, emit = "Slow SQL", log.Warn
	case l.level >= gormlogger.Info:
		msg, emit = "SQL Query", log.Debug
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	if msg == "Slow SQL" {
		fields = append(fields, zap.Duration("threshold", l.slow))
	}
	if err != nil && !notFound {
		fields = append(fields, zap.Error(err))
	}
	emit(msg, fields...)
}

// contextual attaches the request, instance and job identifiers in ctx
func (l *GormLogger) contextual(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.log
	}
	fields := make([]zap.Field, 0, len(contextFields))
	for _, key := range contextFields {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	if len(fields) == 0 {
		return l.log
	}
	return l.log.With(fields...)
}

// MapGormLogLevel maps the configured log level onto GORM's levels. SQL
// statements are only traced when the service logs at debug or info.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error", "fatal":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
