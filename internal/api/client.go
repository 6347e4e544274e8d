package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// ErrMaxRetries is returned once every attempt failed with a transient error.
var ErrMaxRetries = errors.New("api: max retries exceeded")

// StatusError is a non-2xx response that will not be retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// RetryPolicy controls which failures are retried and how often.
// Attempt n (1-based) that fails sleeps uniform(MinBackoff*n, MaxBackoff*n)
// before attempt n+1.
type RetryPolicy struct {
	MaxAttempts int
	Retryable   map[int]bool
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries timeouts, rate limits and gateway errors up to 6 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		Retryable: map[int]bool{
			http.StatusRequestTimeout:      true, // 408
			http.StatusTooEarly:            true, // 425
			http.StatusTooManyRequests:     true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
		MinBackoff: 400 * time.Millisecond,
		MaxBackoff: 1000 * time.Millisecond,
	}
}

// Backoff returns the sleep after failed attempt n.
func (p RetryPolicy) Backoff(attempt int, r float64) time.Duration {
	lo := p.MinBackoff * time.Duration(attempt)
	hi := p.MaxBackoff * time.Duration(attempt)
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r*float64(hi-lo))
}

// RateLimitedClient wraps http.Client with rate limiting and retries
type RateLimitedClient struct {
	client      *http.Client
	rateLimiter *rateLimiter
	policy      RetryPolicy

	// swapped in tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	// 600 req/min = 10 req/sec, refill 1 token every 100ms
	refillRate := time.Minute / time.Duration(requestsPerMinute)
	burst := max(requestsPerMinute/6, 1) // 10 seconds worth
	return &rateLimiter{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		rl.mu.Lock()

		// Refill tokens based on time elapsed
		now := time.Now()
		elapsed := now.Sub(rl.lastRefill)
		tokensToAdd := int(elapsed / rl.refillRate)
		if tokensToAdd > 0 {
			rl.tokens = min(rl.tokens+tokensToAdd, rl.maxTokens)
			rl.lastRefill = now
		}

		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Release lock before sleeping
		waitTime := rl.refillRate
		rl.mu.Unlock()
		if err := sleepCtx(ctx, waitTime); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewRateLimitedClient creates a client limited to requestsPerMinute
func NewRateLimitedClient(requestsPerMinute int, timeout time.Duration, policy RetryPolicy) *RateLimitedClient {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RateLimitedClient{
		client: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: newRateLimiter(requestsPerMinute),
		policy:      policy,
		sleep:       sleepCtx,
		jitter:      rand.Float64,
	}
}

// Get performs a rate-limited GET, retrying transient failures.
// Non-retryable statuses return a *StatusError immediately.
func (c *RateLimitedClient) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.policy.Backoff(attempt-1, c.jitter())); err != nil {
				return nil, err
			}
		}

		body, err := c.send(ctx, http.MethodGet, url, nil, headers)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var se *StatusError
		if errors.As(err, &se) && !c.policy.Retryable[se.Code] {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, c.policy.MaxAttempts, lastErr)
}

// Send performs one rate-limited request with no retry. Used for
// non-idempotent calls such as order placement.
func (c *RateLimitedClient) Send(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.send(ctx, method, url, body, headers)
}

func (c *RateLimitedClient) send(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
