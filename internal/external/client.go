// Package external wraps the third-party data providers the service depends
// on: weather (OpenWeather, Open-Meteo), seismic activity (USGS) and
// elevation (Open-Meteo, Google). Every outbound call goes through
// BaseClient, which adds circuit breaking, bounded retries and a mapping from
// transport failures onto upstream_* AppErrors.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"resilience/internal/types"
)

const userAgent = "resilience-risk/1.0"

// maxBodyBytes caps how much of a provider response is decoded.
const maxBodyBytes = 1 << 20

// RetryPolicy bounds the retry loop for 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy retries twice with sub-second initial backoff. Provider
// timeouts are short (10-20s) so a long retry tail would exceed them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    3 * time.Second,
	}
}

// CallObserver receives the outcome of every provider call. The Prometheus
// metrics type implements it.
type CallObserver interface {
	ObserveProviderCall(provider string, err error, elapsed time.Duration)
}

// BaseClient is embedded by each provider client.
type BaseClient struct {
	name        string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	sleepFn     func(ctx context.Context, d time.Duration) error
	observer    CallObserver
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the wait between retries. Tests pass a no-op.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = func(ctx context.Context, d time.Duration) error {
			fn(d)
			return ctx.Err()
		}
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) BaseClientOption {
	return func(c *BaseClient) { c.retryPolicy = p }
}

// WithObserver attaches a CallObserver.
func WithObserver(o CallObserver) BaseClientOption {
	return func(c *BaseClient) { c.observer = o }
}

// WithBreaker replaces the default circuit breaker, e.g. to share one across
// clients or to trip it faster in tests.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// NewBaseClient builds a BaseClient named after its provider. The name is
// used for the breaker and for metrics labels.
func NewBaseClient(httpClient *http.Client, name string, opts ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	bc := &BaseClient{
		name:        name,
		client:      httpClient,
		retryPolicy: DefaultRetryPolicy(),
		sleepFn:     sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.breaker == nil {
		bc.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		})
	}
	return bc
}

// Name returns the provider name.
func (c *BaseClient) Name() string { return c.name }

// Do sends req, retrying 429 and 5xx responses. Any other response is
// returned to the caller, who owns the body. Exhausted retries, an open
// breaker or a transport failure come back as an upstream_* AppError.
func (c *BaseClient) Do(req *http.Request) (resp *http.Response, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveProviderCall(c.name, err, time.Since(start))
		}
	}()

	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	var last *http.Response
	var lastErr error
	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		r, execErr := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("%s returned %d", c.name, r.StatusCode)
			}
			return r, nil
		})
		if execErr == nil {
			return r, nil
		}
		lastErr = execErr
		if last != nil {
			last.Body.Close()
		}
		last = r

		if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt < attempts-1 {
			if err := c.sleepFn(req.Context(), c.backoff(attempt, r)); err != nil {
				break
			}
		}
	}
	if last != nil {
		last.Body.Close()
	}
	return nil, c.mapError(last, lastErr)
}

// backoff honors a numeric Retry-After header, otherwise uses exponential
// backoff with jitter between MinWait and MaxWait.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	p := c.retryPolicy
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return min(time.Duration(secs)*time.Second, p.MaxWait)
		}
	}
	ceiling := math.Min(float64(p.MinWait)*math.Pow(2, float64(attempt)), float64(p.MaxWait))
	if ceiling <= float64(p.MinWait) {
		return p.MinWait
	}
	return time.Duration(float64(p.MinWait) + rand.Float64()*(ceiling-float64(p.MinWait)))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	details := map[string]any{"provider": c.name}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			c.name+" circuit breaker is open", err, details)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited,
			c.name+" rate limit exceeded", err, details)
	case resp != nil:
		details["status"] = resp.StatusCode
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s returned %d after retries", c.name, resp.StatusCode), err, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			c.name+" request failed", err, details)
	}
}

// getJSON issues a GET and decodes a 2xx JSON body into out. Non-2xx
// responses and undecodable bodies are reported as invalid payloads.
func (c *BaseClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build "+c.name+" request", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read "+c.name+" response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamInvalidPayload,
			fmt.Sprintf("%s returned %d", c.name, resp.StatusCode), nil,
			map[string]any{"provider": c.name, "status": resp.StatusCode})
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamInvalidPayload, "failed to decode "+c.name+" response", err)
	}
	return nil
}
