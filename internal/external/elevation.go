package external

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"resilience/internal/types"
)

const googleMapsAPIBase = "https://maps.googleapis.com/maps/api"

// ElevationClientConfig configures the elevation clients.
type ElevationClientConfig struct {
	APIKey  types.SecretString
	BaseURL string
}

type openMeteoElevationResponse struct {
	Elevation []float64 `json:"elevation"`
}

// OpenMeteoElevationClient reads terrain elevation from Open-Meteo.
type OpenMeteoElevationClient struct {
	base    *BaseClient
	baseURL string
}

// NewOpenMeteoElevationClientWithBase builds a client over a prepared
// BaseClient.
func NewOpenMeteoElevationClientWithBase(base *BaseClient, cfg ElevationClientConfig) *OpenMeteoElevationClient {
	return &OpenMeteoElevationClient{base: base, baseURL: baseURLOr(cfg.BaseURL, openMeteoAPIBase)}
}

// FetchElevation implements ElevationSource.
func (c *OpenMeteoElevationClient) FetchElevation(ctx context.Context, loc types.Location) (float64, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(loc.Lat))
	q.Set("longitude", formatCoord(loc.Lng))

	var body openMeteoElevationResponse
	if err := c.base.getJSON(ctx, c.baseURL+"/v1/elevation?"+q.Encode(), &body); err != nil {
		return 0, err
	}
	if len(body.Elevation) == 0 {
		return 0, types.NewAppError(types.ErrCodeUpstreamElevation, "open-meteo returned no elevation", nil)
	}
	return body.Elevation[0], nil
}

type googleElevationResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// GoogleElevationClient reads terrain elevation from the Google Maps
// Elevation API.
type GoogleElevationClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
}

// NewGoogleElevationClientWithBase builds a client over a prepared
// BaseClient.
func NewGoogleElevationClientWithBase(base *BaseClient, cfg ElevationClientConfig) *GoogleElevationClient {
	return &GoogleElevationClient{base: base, apiKey: cfg.APIKey, baseURL: baseURLOr(cfg.BaseURL, googleMapsAPIBase)}
}

// FetchElevation implements ElevationSource.
func (c *GoogleElevationClient) FetchElevation(ctx context.Context, loc types.Location) (float64, error) {
	if !c.apiKey.IsSet() {
		return 0, types.NewAppError(types.ErrCodeUpstreamElevation, "google elevation api key is not configured", nil)
	}
	q := url.Values{}
	q.Set("locations", fmt.Sprintf("%s,%s", formatCoord(loc.Lat), formatCoord(loc.Lng)))
	q.Set("key", c.apiKey.Unmask())

	var body googleElevationResponse
	if err := c.base.getJSON(ctx, c.baseURL+"/elevation/json?"+q.Encode(), &body); err != nil {
		return 0, err
	}
	if len(body.Results) == 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeUpstreamElevation,
			"google returned no elevation", nil,
			map[string]any{"status": body.Status, "message": body.ErrorMessage})
	}
	return body.Results[0].Elevation, nil
}

// DefaultElevationCacheTTL bounds how long a looked-up elevation is reused.
// Terrain does not change, so the TTL exists only to cap memory churn.
const DefaultElevationCacheTTL = 24 * time.Hour

type elevationEntry struct {
	meters  float64
	expires time.Time
}

// CachedElevation memoizes successful lookups per coordinate pair, rounded to
// four decimal places (about 11 m). Failures are not cached.
type CachedElevation struct {
	next  ElevationSource
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[types.Location]elevationEntry
}

// NewCachedElevation wraps next. A nil clock uses the real clock.
func NewCachedElevation(next ElevationSource, clock clockwork.Clock, ttl time.Duration) *CachedElevation {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultElevationCacheTTL
	}
	return &CachedElevation{next: next, clock: clock, ttl: ttl, entries: make(map[types.Location]elevationEntry)}
}

func elevationCacheKey(loc types.Location) types.Location {
	return types.Location{
		Lat: math.Round(loc.Lat*1e4) / 1e4,
		Lng: math.Round(loc.Lng*1e4) / 1e4,
	}
}

// FetchElevation implements ElevationSource.
func (c *CachedElevation) FetchElevation(ctx context.Context, loc types.Location) (float64, error) {
	now := c.clock.Now()
	key := elevationCacheKey(loc)
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.meters, nil
	}

	meters, err := c.next.FetchElevation(ctx, loc)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = elevationEntry{meters: meters, expires: now.Add(c.ttl)}
	for k, v := range c.entries {
		if !now.Before(v.expires) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return meters, nil
}

// RateLimitedElevation throttles calls to the wrapped source. Free elevation
// APIs enforce per-second quotas.
type RateLimitedElevation struct {
	next    ElevationSource
	limiter *rate.Limiter
}

// NewRateLimitedElevation wraps next with limiter.
func NewRateLimitedElevation(next ElevationSource, limiter *rate.Limiter) *RateLimitedElevation {
	return &RateLimitedElevation{next: next, limiter: limiter}
}

// FetchElevation implements ElevationSource.
func (r *RateLimitedElevation) FetchElevation(ctx context.Context, loc types.Location) (float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamRateLimited, "elevation rate limiter wait aborted", err)
	}
	return r.next.FetchElevation(ctx, loc)
}

// BestEffortElevation adapts an ElevationSource to the orchestrator's
// contract: failures are logged and reported as unknown (nil).
type BestEffortElevation struct {
	src    ElevationSource
	logger *slog.Logger
}

// NewBestEffortElevation wraps src.
func NewBestEffortElevation(src ElevationSource, logger *slog.Logger) *BestEffortElevation {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffortElevation{src: src, logger: logger}
}

// Elevation returns meters above sea level, or nil when unavailable.
func (b *BestEffortElevation) Elevation(ctx context.Context, loc types.Location) *float64 {
	meters, err := b.src.FetchElevation(ctx, loc)
	if err != nil {
		b.logger.WarnContext(ctx, "elevation lookup failed, continuing without it",
			"lat", loc.Lat,
			"lng", loc.Lng,
			"error", err,
		)
		return nil
	}
	return &meters
}
