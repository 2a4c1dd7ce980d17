package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Gin context keys set by this package and by the request id middleware
const (
	ginLoggerKey    = "logger"
	ginRequestIDKey = "request_id"
)

// Shopify delivery headers copied onto webhook access log entries
var webhookHeaders = [...]struct{ header, field string }{
	{"X-Shopify-Topic", "webhook_topic"},
	{"X-Shopify-Shop-Domain", "shop_domain"},
	{"X-Shopify-Webhook-Id", "webhook_id"},
}

// AccessLogOption configures GinMiddleware
type AccessLogOption func(*accessLog)

type accessLog struct {
	quiet map[string]struct{}
}

// WithQuietPaths logs successful requests to the given paths at debug
// level. Health probes and metric scrapes would otherwise dominate the log.
func WithQuietPaths(paths ...string) AccessLogOption {
	return func(a *accessLog) {
		for _, p := range paths {
			a.quiet[p] = struct{}{}
		}
	}
}

func ginRequestID(c *gin.Context) string {
	id, _ := c.Get(ginRequestIDKey)
	s, _ := id.(string)
	return s
}

// GinMiddleware logs one entry per request and stores a request scoped
// logger in both the gin and the request context.
func GinMiddleware(logger *zap.Logger, opts ...AccessLogOption) gin.HandlerFunc {
	cfg := accessLog{quiet: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		requestID := ginRequestID(c)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		}
		for _, h := range webhookHeaders {
			if v := req.Header.Get(h.header); v != "" {
				fields = append(fields, zap.String(h.field, v))
			}
		}
		reqLogger := logger.With(fields...)

		c.Set(ginLoggerKey, reqLogger)
		ctx := WithContext(req.Context(), reqLogger)
		if requestID != "" {
			ctx = context.WithValue(ctx, RequestIDKey, requestID)
		}
		c.Request = req.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		entry := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", req.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := req.URL.RawQuery; q != "" {
			entry = append(entry, zap.String("query", q))
		}
		if op := GetOperator(c.Request.Context()); op != "" {
			entry = append(entry, zap.String("operator", op))
		}
		if len(c.Errors) > 0 {
			entry = append(entry, zap.Strings("errors", c.Errors.Errors()))
		}

		const msg = "HTTP Request"
		_, quiet := cfg.quiet[req.URL.Path]
		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error(msg, entry...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn(msg, entry...)
		case quiet:
			reqLogger.Debug(msg, entry...)
		default:
			reqLogger.Info(msg, entry...)
		}
	}
}

// Recovery turns a handler panic into a 500 error envelope and logs it
// with the stack. A webhook delivery that panics is therefore retried by
// the shop instead of being dropped.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := ginRequestID(c)
			logger.Error("Panic recovered",
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("error", rec),
				zap.Stack("stacktrace"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "ERR_INTERNAL",
					"message":    "Internal server error",
					"request_id": requestID,
					"timestamp":  time.Now().UTC(),
				},
			})
		}()
		c.Next()
	}
}

// GetGinLogger returns the request scoped logger, or a no-op logger when
// GinMiddleware did not run
func GetGinLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Value(ginLoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
