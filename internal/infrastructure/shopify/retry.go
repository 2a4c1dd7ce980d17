package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erp/shopsync/internal/domain/integration"
)

// statusError is a non-2xx response the client may retry
type statusError struct {
	statusCode int
	status     string
	body       string
	retryAfter time.Duration
	cause      error
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("shopify request failed: %s", e.status)
	}
	return fmt.Sprintf("shopify request failed: %s: %s", e.status, e.body)
}

func (e *statusError) Unwrap() error {
	return e.cause
}

// transportError is a failure below HTTP (dial, TLS, timeout)
type transportError struct {
	err error
	// sent is set once the request headers were written to the connection
	sent bool
}

func (e *transportError) Error() string {
	return "shopify transport error: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

// isRetryable reports whether req can be sent again after err. A 429 means
// the store dropped the request; any other failure of a non-replayable
// request may have been applied already.
func isRetryable(req request, err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.statusCode {
		case http.StatusTooManyRequests:
			return true
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return req.replayable()
		}
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return !te.sent || req.replayable()
	}
	return false
}

// notRetried classifies a failure that is not retried. A transport error
// leaves the outcome unknown, so it counts as the store being unavailable.
func notRetried(err error) error {
	var te *transportError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %v, not retried", integration.ErrRemoteUnavailable, err)
	}
	return err
}

// retryDelay is the wait before retry number attempt (0-based). A
// Retry-After hint from the server wins over the exponential schedule.
func (c *Client) retryDelay(attempt int, err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > 0 {
		if se.retryAfter > c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
		return se.retryAfter
	}
	if attempt < 0 {
		return 0
	}
	delay := c.config.BaseBackoff << attempt
	if delay <= 0 || delay > c.config.MaxBackoff {
		delay = c.config.MaxBackoff
	}
	return delay
}

// exhausted converts the last transient error into the systemic one
func exhausted(err error, attempts int) error {
	if errors.Is(err, integration.ErrRemoteRateLimited) {
		return fmt.Errorf("%w: %w after %d attempts", integration.ErrRemoteUnavailable, integration.ErrRemoteRateLimited, attempts)
	}
	return fmt.Errorf("%w: %v after %d attempts", integration.ErrRemoteUnavailable, err, attempts)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, integration.ErrRemoteNotFound)
}
