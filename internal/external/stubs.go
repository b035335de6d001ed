package external

import (
	"context"
	"log/slog"

	"resilience/internal/types"
)

// Stub providers let the service boot in test mode without network access.
// They log every call and return fixed, plausible readings.

// StubWeather returns a mild, dry reading.
type StubWeather struct{ logger *slog.Logger }

// NewStubWeather creates a StubWeather.
func NewStubWeather(logger *slog.Logger) *StubWeather { return &StubWeather{logger: logger} }

// FetchWeather implements WeatherSource.
func (s *StubWeather) FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error) {
	s.logger.InfoContext(ctx, "stub: FetchWeather called", "lat", loc.Lat, "lng", loc.Lng)
	return &types.WeatherReading{
		TemperatureC:  21,
		WindSpeedMS:   3,
		RainfallMM:    0,
		HumidityPct:   55,
		CloudinessPct: 20,
		Source:        "Stub",
	}, nil
}

// StubSeismic reports no events.
type StubSeismic struct{ logger *slog.Logger }

// NewStubSeismic creates a StubSeismic.
func NewStubSeismic(logger *slog.Logger) *StubSeismic { return &StubSeismic{logger: logger} }

// CountEvents implements SeismicSource.
func (s *StubSeismic) CountEvents(ctx context.Context, q types.SeismicQuery) (int, error) {
	s.logger.InfoContext(ctx, "stub: CountEvents called",
		"lat", q.Location.Lat,
		"lng", q.Location.Lng,
		"window_days", q.WindowDays,
	)
	return 0, nil
}

// StubElevation reports a fixed inland elevation.
type StubElevation struct{ logger *slog.Logger }

// NewStubElevation creates a StubElevation.
func NewStubElevation(logger *slog.Logger) *StubElevation { return &StubElevation{logger: logger} }

// FetchElevation implements ElevationSource.
func (s *StubElevation) FetchElevation(ctx context.Context, loc types.Location) (float64, error) {
	s.logger.InfoContext(ctx, "stub: FetchElevation called", "lat", loc.Lat, "lng", loc.Lng)
	return 150, nil
}
