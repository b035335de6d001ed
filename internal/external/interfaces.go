package external

import (
	"context"

	"resilience/internal/types"
)

// WeatherSource returns current conditions for a location.
type WeatherSource interface {
	FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error)
}

// SeismicSource counts recent seismic events around a location.
type SeismicSource interface {
	CountEvents(ctx context.Context, q types.SeismicQuery) (int, error)
}

// ElevationSource returns the terrain elevation in meters.
type ElevationSource interface {
	FetchElevation(ctx context.Context, loc types.Location) (float64, error)
}

// Provider names used for breaker, log and metric labels.
const (
	ProviderOpenWeather        = "openweather"
	ProviderOpenMeteo          = "open-meteo"
	ProviderOpenMeteoElevation = "open-meteo-elevation"
	ProviderGoogleElevation    = "google-elevation"
	ProviderUSGS               = "usgs"
)
