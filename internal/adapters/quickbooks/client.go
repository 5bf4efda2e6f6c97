package quickbooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"erpinsight/internal/adapters/config"
	"erpinsight/internal/domain/accounting"
	"erpinsight/internal/metrics"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

var _ accounting.Source = (*Client)(nil)

// Client talks to the QuickBooks Online REST API. Requests are rate limited,
// retried on 429/5xx with exponential backoff, guarded by a circuit breaker,
// and query results are cached per realm.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	minorVersion string
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	cache        Cache
	cacheTTL     time.Duration
	maxRetries   int
	backoffMin   time.Duration
	log          *logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache enables query result caching
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithBackoffMin sets the first retry delay
func WithBackoffMin(d time.Duration) Option {
	return func(c *Client) { c.backoffMin = d }
}

// NewClient builds a client from config
func NewClient(cfg config.QuickBooksConfig, opts ...Option) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.APIBase(),
		minorVersion: cfg.MinorVersion,
		limiter:      rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		cache:        NopCache{},
		maxRetries:   cfg.MaxRetries,
		backoffMin:   500 * time.Millisecond,
		log:          logger.Get().With("component", "quickbooks"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "quickbooks",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		},
		// Client-side problems say nothing about the API's health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, errors.ErrUnauthorized) ||
				errors.Is(err, errors.ErrInvalidInput) ||
				errors.Is(err, context.Canceled)
		},
	})

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Health reports whether the API is currently reachable from our side.
// Without per-user credentials no live probe is possible, so an open
// breaker is the only failure signal.
func (c *Client) Health(ctx context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.Wrap(errors.ErrUnavailable, "quickbooks circuit open")
	}
	return nil
}

// get issues an authenticated GET against /v3/company/{realm}/{path}
func (c *Client) get(ctx context.Context, creds accounting.Credentials, path string, params url.Values) ([]byte, error) {
	if !creds.Valid() {
		return nil, errors.ErrNoAccess
	}
	if params == nil {
		params = url.Values{}
	}
	if c.minorVersion != "" {
		params.Set("minorversion", c.minorVersion)
	}

	endpoint := fmt.Sprintf("%s/v3/company/%s/%s?%s", c.baseURL, url.PathEscape(creds.RealmID), path, params.Encode())

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doWithRetry(ctx, creds.AccessToken, endpoint)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return body, err
}

func (c *Client) doWithRetry(ctx context.Context, token, endpoint string) ([]byte, error) {
	b := &backoff.Backoff{
		Min:    c.backoffMin,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "quickbooks rate limiter")
		}

		body, retryAfter, err := c.do(ctx, token, endpoint)
		if err == nil {
			return body, nil
		}

		var re *retryableError
		if !errors.As(err, &re) || attempt >= c.maxRetries {
			return nil, err
		}

		wait := b.Duration()
		if retryAfter > wait {
			wait = retryAfter
		}
		metrics.DataRetries.WithLabelValues(re.reason).Inc()
		c.log.Debugw("retrying quickbooks request", "attempt", attempt+1, "wait", wait, "reason", re.reason)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

type retryableError struct {
	reason string
	err    error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, token, endpoint string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create quickbooks request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "send quickbooks request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read quickbooks response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, 0, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, errors.Wrapf(errors.ErrUnauthorized, "quickbooks API (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, 0, errors.Wrapf(errors.ErrInvalidInput, "quickbooks API (400): %s", truncate(body, 300))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &retryableError{
			reason: "rate_limited",
			err:    errors.Wrap(errors.ErrRateLimitExceeded, "quickbooks API (429)"),
		}
	case resp.StatusCode >= 500:
		return nil, 0, &retryableError{
			reason: "server_error",
			err:    errors.Wrapf(errors.ErrExternal, "quickbooks API (%d): %s", resp.StatusCode, truncate(body, 300)),
		}
	default:
		return nil, 0, errors.Wrapf(errors.ErrExternal, "quickbooks API (%d): %s", resp.StatusCode, truncate(body, 300))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
