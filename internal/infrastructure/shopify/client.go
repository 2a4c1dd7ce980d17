package shopify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/shopsync/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the Admin API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	headerAccessToken   = "X-Shopify-Access-Token"
	headerCallLimit     = "X-Shopify-Shop-Api-Call-Limit"
	headerRetryAfter    = "Retry-After"
	headerLink          = "Link"
	maxPageSize         = 250
	defaultListPageSize = 50
)

// Observer receives transport measurements, e.g. for Prometheus
type Observer interface {
	ObserveRemoteRequest(method string, statusCode int, duration time.Duration)
	ObserveRemoteRetry(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveRemoteRequest(string, int, time.Duration) {}
func (nopObserver) ObserveRemoteRetry(string)                       {}

// Client is a rate limited Admin REST API client for one store. It
// implements integration.RemoteClient.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	observer   Observer
	sleep      func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	pauseUntil time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client; its Timeout is overwritten by Config.Timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver sets the transport observer
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// withSleeper replaces the backoff sleep, tests use it to skip waiting
func withSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a client after validating the configuration
func NewClient(config Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config:     config,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:     zap.NewNop(),
		observer:   nopObserver{},
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Timeout = config.Timeout
	return c, nil
}

// request is one logical API call; retries resend the same body
type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
	// idempotent marks a POST that can be repeated safely, e.g. setting an
	// absolute inventory level
	idempotent bool
}

// replayable reports whether a request that may have reached the store can
// be sent again
func (r request) replayable() bool {
	return r.method != http.MethodPost || r.idempotent
}

type response struct {
	body   []byte
	header http.Header
}

// do sends req with pacing and retries. Transient failures (429, 5xx,
// transport errors) are retried up to MaxAttempts with exponential backoff,
// then surfaced as integration.ErrRemoteUnavailable. A create is only
// retried when the store did not act on it: after a 429 or when the
// request never left the client.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(req, err) {
			return nil, notRetried(err)
		}
		lastErr = err

		if attempt+1 == c.config.MaxAttempts {
			break
		}
		delay := c.retryDelay(attempt, err)
		reason := "transport"
		var se *statusError
		if errors.As(err, &se) {
			reason = strconv.Itoa(se.statusCode)
		}
		c.observer.ObserveRemoteRetry(reason)
		c.logger.Debug("Retrying Shopify request",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, exhausted(lastErr, c.config.MaxAttempts)
}

// pace waits for a token and for any pause requested by the call-limit header
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.pauseUntil)
	c.mu.Unlock()
	if wait > 0 {
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return c.limiter.Wait(ctx)
}

// observeCallLimit parses "used/max" and pauses one leak interval when the
// bucket is nearly full.
func (c *Client) observeCallLimit(v string) {
	used, limit, ok := strings.Cut(v, "/")
	if !ok {
		return
	}
	u, err1 := strconv.Atoi(strings.TrimSpace(used))
	m, err2 := strconv.Atoi(strings.TrimSpace(limit))
	if err1 != nil || err2 != nil || m <= 0 {
		return
	}
	if float64(u)/float64(m) < c.config.ThrottleThreshold {
		return
	}
	pause := time.Duration(float64(time.Second) / c.config.RequestsPerSecond)
	c.mu.Lock()
	c.pauseUntil = time.Now().Add(pause)
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	u := c.config.BaseURL() + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	httpReq.Header.Set(headerAccessToken, c.config.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	var wrote atomic.Bool
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteHeaders: func() { wrote.Store(true) },
	}))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observer.ObserveRemoteRequest(req.method, 0, time.Since(start))
		return nil, &transportError{err: err, sent: wrote.Load()}
	}
	defer resp.Body.Close()
	c.observer.ObserveRemoteRequest(req.method, resp.StatusCode, time.Since(start))

	if v := resp.Header.Get(headerCallLimit); v != "" {
		c.observeCallLimit(v)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &transportError{err: err, sent: true}
	}

	if err := classifyStatus(resp, data); err != nil {
		return nil, err
	}
	return &response{body: data, header: resp.Header}, nil
}

// classifyStatus maps a response status onto the sync error taxonomy
func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", integration.ErrAuthRejected, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", integration.ErrRemoteNotFound, code)
	case code == http.StatusTooManyRequests:
		return &statusError{
			statusCode: code,
			status:     resp.Status,
			retryAfter: parseRetryAfter(resp.Header.Get(headerRetryAfter)),
			cause:      integration.ErrRemoteRateLimited,
		}
	case code >= 500:
		return &statusError{
			statusCode: code,
			status:     resp.Status,
			body:       errorMessage(body),
			cause:      integration.ErrRemoteUnavailable,
		}
	case code == http.StatusPaymentRequired || code == http.StatusLocked:
		// frozen or locked shop
		return fmt.Errorf("%w: HTTP %d", integration.ErrRemoteUnavailable, code)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrValidation, code, errorMessage(body))
	}
}

// errorMessage extracts the "errors" member of an Admin API error body
func errorMessage(body []byte) string {
	errs := gjson.GetBytes(body, "errors")
	switch {
	case !errs.Exists():
		return strings.TrimSpace(string(body))
	case errs.Type == gjson.String:
		return errs.String()
	default:
		return errs.Raw
	}
}

// nextPageInfo extracts the page_info cursor of the rel="next" link
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end <= start {
			return ""
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultListPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
