package external

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"resilience/internal/types"
)

const usgsAPIBase = "https://earthquake.usgs.gov/fdsnws/event/1"

// Seismic query defaults.
const (
	DefaultSeismicWindowDays = 7
	DefaultSeismicRadiusKm   = 100.0
)

// USGSClientConfig configures the USGS client.
type USGSClientConfig struct {
	BaseURL string
	Clock   clockwork.Clock
}

// usgsCountResponse is the body of /count?format=geojson. The event list
// itself is never downloaded, so busy regions cost one small response.
type usgsCountResponse struct {
	Count      *int `json:"count"`
	MaxAllowed int  `json:"maxAllowed"`
}

// USGSClient counts events from the USGS FDSN event service.
type USGSClient struct {
	base    *BaseClient
	baseURL string
	clock   clockwork.Clock
}

// NewUSGSClientWithBase builds a client over a prepared BaseClient.
func NewUSGSClientWithBase(base *BaseClient, cfg USGSClientConfig) *USGSClient {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &USGSClient{base: base, baseURL: baseURLOr(cfg.BaseURL, usgsAPIBase), clock: clock}
}

// CountEvents implements SeismicSource. The window is expressed in whole UTC
// days, so a 7 day window ending today starts seven calendar days back.
func (c *USGSClient) CountEvents(ctx context.Context, q types.SeismicQuery) (int, error) {
	if q.WindowDays <= 0 {
		q.WindowDays = DefaultSeismicWindowDays
	}
	if q.RadiusKm <= 0 {
		q.RadiusKm = DefaultSeismicRadiusKm
	}
	end := c.clock.Now().UTC()
	start := end.Add(-time.Duration(q.WindowDays) * 24 * time.Hour)

	v := url.Values{}
	v.Set("format", "geojson")
	v.Set("starttime", start.Format(time.DateOnly))
	v.Set("endtime", end.Format(time.DateOnly))
	v.Set("latitude", formatCoord(q.Location.Lat))
	v.Set("longitude", formatCoord(q.Location.Lng))
	v.Set("maxradiuskm", strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	if q.MinMagnitude > 0 {
		v.Set("minmagnitude", strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64))
	}

	var body usgsCountResponse
	if err := c.base.getJSON(ctx, c.baseURL+"/count?"+v.Encode(), &body); err != nil {
		return 0, err
	}
	if body.Count == nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamSeismic, "usgs response has no count", nil)
	}
	return *body.Count, nil
}
