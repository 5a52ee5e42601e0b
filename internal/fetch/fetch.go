package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/astroplan/siqs-service/internal/observability"
)

// Options controls retry and timeout behaviour for a single logical fetch.
type Options struct {
	MaxRetries    int           // additional attempts after the first
	RetryDelay    time.Duration // delay before the first retry
	BackoffFactor float64       // multiplier applied per retry
	Timeout       time.Duration // per-attempt timeout
}

// DefaultOptions returns the standard fetch options.
func DefaultOptions() Options {
	return Options{
		MaxRetries:    2,
		RetryDelay:    1 * time.Second,
		BackoffFactor: 1.5,
		Timeout:       10 * time.Second,
	}
}

var (
	// ErrAborted marks a fetch terminated by the caller's context. It is
	// never retried, which distinguishes a user abort from the internal
	// per-attempt timeout.
	ErrAborted = errors.New("fetch aborted by caller")

	errServerError = errors.New("server error")
	errRateLimited = errors.New("rate limited")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// CallRecord is one terminal fetch outcome, kept for inspection.
type CallRecord struct {
	ID       string        `json:"id"`
	Endpoint string        `json:"endpoint"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Retries  int           `json:"retries"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

const maxCallRecords = 256

// Client is the shared outbound HTTP layer: bounded retries with
// exponential backoff, a per-host circuit breaker, and call metrics.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	records  []CallRecord
}

// NewClient creates a fetch client around the given HTTP client.
func NewClient(httpClient *http.Client, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

// GetJSON fetches rawURL and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, opts Options, out any) error {
	body, err := c.Get(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpointOf(rawURL), err)
	}
	return nil
}

// Get fetches rawURL with retries and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 1
	}

	endpoint := endpointOf(rawURL)
	cb := c.breaker(endpoint)
	start := time.Now()

	var (
		attempt int
		lastErr error
	)

	for {
		if ctx.Err() != nil {
			return nil, c.finish(endpoint, start, attempt, nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
		}

		body, err := c.attempt(ctx, cb, rawURL, opts.Timeout)
		if err == nil {
			return body, c.finish(endpoint, start, attempt, body, nil)
		}

		// Caller cancellation is terminal, never retried.
		if ctx.Err() != nil {
			return nil, c.finish(endpoint, start, attempt, nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
		}

		// Open circuit means the endpoint is known bad; retrying only
		// hammers the breaker.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, c.finish(endpoint, start, attempt, nil, fmt.Errorf("%w: %v", errCircuitOpen, err))
		}

		lastErr = err
		if attempt >= opts.MaxRetries {
			return nil, c.finish(endpoint, start, attempt, nil, lastErr)
		}

		delay := time.Duration(float64(opts.RetryDelay) * math.Pow(opts.BackoffFactor, float64(attempt)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, c.finish(endpoint, start, attempt, nil, fmt.Errorf("%w: %v", ErrAborted, ctx.Err()))
		case <-timer.C:
		}

		attempt++
		c.metrics.FetchRetries.WithLabelValues(endpoint).Inc()
	}
}

// attempt runs a single bounded request through the circuit breaker.
func (c *Client) attempt(ctx context.Context, cb *gobreaker.CircuitBreaker, rawURL string, timeout time.Duration) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := c.httpClient.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// finish records the terminal outcome and returns err unchanged.
func (c *Client) finish(endpoint string, start time.Time, retries int, _ []byte, err error) error {
	duration := time.Since(start)

	rec := CallRecord{
		ID:       uuid.NewString(),
		Endpoint: endpoint,
		Success:  err == nil,
		Duration: duration,
		Retries:  retries,
		At:       time.Now().UTC(),
	}

	outcome := "success"
	if err != nil {
		rec.Error = err.Error()
		outcome = "error"
		if errors.Is(err, ErrAborted) {
			outcome = "aborted"
		}
		c.logger.Warn("fetch failed", "endpoint", endpoint, "retries", retries, "error", err)
	}

	c.metrics.FetchRequests.WithLabelValues(endpoint, outcome).Inc()
	c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

	c.mu.Lock()
	c.records = append(c.records, rec)
	if len(c.records) > maxCallRecords {
		c.records = c.records[len(c.records)-maxCallRecords:]
	}
	c.mu.Unlock()

	return err
}

// Recent returns a copy of the recorded terminal outcomes, oldest first.
func (c *Client) Recent() []CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallRecord, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Client) breaker(endpoint string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[endpoint]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	c.breakers[endpoint] = cb
	return cb
}

// endpointOf reduces a URL to its host for metric labels and breaker keys.
func endpointOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
