package external

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"resilience/internal/types"
)

const (
	openWeatherAPIBase = "https://api.openweathermap.org/data/2.5"
	openMeteoAPIBase   = "https://api.open-meteo.com"
)

// WeatherClientConfig configures the weather clients. BaseURL overrides the
// provider default and exists for tests and self-hosted mirrors.
type WeatherClientConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Logger  *slog.Logger
}

// openWeatherResponse is the subset of /weather the service reads.
type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain map[string]float64 `json:"rain"`
}

// OpenWeatherClient reads current conditions from OpenWeather.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
}

// NewOpenWeatherClientWithBase builds a client over a prepared BaseClient.
func NewOpenWeatherClientWithBase(base *BaseClient, cfg WeatherClientConfig) *OpenWeatherClient {
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: baseURLOr(cfg.BaseURL, openWeatherAPIBase),
	}
}

// FetchWeather implements WeatherSource.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error) {
	if !c.apiKey.IsSet() {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "openweather api key is not configured", nil)
	}
	q := url.Values{}
	q.Set("lat", formatCoord(loc.Lat))
	q.Set("lon", formatCoord(loc.Lng))
	q.Set("appid", c.apiKey.Unmask())
	q.Set("units", "metric")

	var body openWeatherResponse
	if err := c.base.getJSON(ctx, c.baseURL+"/weather?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	rain := body.Rain["1h"]
	if rain == 0 {
		rain = body.Rain["3h"]
	}
	return &types.WeatherReading{
		TemperatureC:  body.Main.Temp,
		WindSpeedMS:   body.Wind.Speed,
		RainfallMM:    rain,
		HumidityPct:   body.Main.Humidity,
		CloudinessPct: body.Clouds.All,
		Source:        types.WeatherSourceOpenWeather,
	}, nil
}

// openMeteoForecastResponse carries the "current" block of /v1/forecast.
type openMeteoForecastResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		CloudCover    float64 `json:"cloud_cover"`
	} `json:"current"`
}

// OpenMeteoClient reads current conditions from Open-Meteo. It needs no key.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
}

// NewOpenMeteoClientWithBase builds a client over a prepared BaseClient.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg WeatherClientConfig) *OpenMeteoClient {
	return &OpenMeteoClient{base: base, baseURL: baseURLOr(cfg.BaseURL, openMeteoAPIBase)}
}

// FetchWeather implements WeatherSource. Wind is requested in m/s so it
// lines up with OpenWeather's metric units.
func (c *OpenMeteoClient) FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error) {
	q := url.Values{}
	q.Set("latitude", formatCoord(loc.Lat))
	q.Set("longitude", formatCoord(loc.Lng))
	q.Set("current", "temperature_2m,precipitation,wind_speed_10m,relative_humidity_2m,cloud_cover")
	q.Set("wind_speed_unit", "ms")

	var body openMeteoForecastResponse
	if err := c.base.getJSON(ctx, c.baseURL+"/v1/forecast?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	return &types.WeatherReading{
		TemperatureC:  body.Current.Temperature,
		WindSpeedMS:   body.Current.WindSpeed,
		RainfallMM:    body.Current.Precipitation,
		HumidityPct:   body.Current.Humidity,
		CloudinessPct: body.Current.CloudCover,
		Source:        types.WeatherSourceOpenMeteo,
	}, nil
}

// FallbackWeather tries each source in order and returns the first success.
type FallbackWeather struct {
	sources []WeatherSource
	logger  *slog.Logger
}

// NewFallbackWeather chains sources. Nil entries are skipped.
func NewFallbackWeather(logger *slog.Logger, sources ...WeatherSource) *FallbackWeather {
	if logger == nil {
		logger = slog.Default()
	}
	chain := make([]WeatherSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return &FallbackWeather{sources: chain, logger: logger}
}

// FetchWeather validates coordinates before any call. When every source
// fails the result is upstream_weather_unavailable wrapping all causes.
func (f *FallbackWeather) FetchWeather(ctx context.Context, loc types.Location) (*types.WeatherReading, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	var errs []error
	for i, src := range f.sources {
		reading, err := src.FetchWeather(ctx, loc)
		if err == nil {
			return reading, nil
		}
		errs = append(errs, err)
		if i < len(f.sources)-1 {
			f.logger.WarnContext(ctx, "weather source failed, trying fallback",
				"source_index", i,
				"error", err,
			)
		}
	}
	return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
		"all weather providers failed", errors.Join(errs...))
}

func baseURLOr(override, def string) string {
	if override == "" {
		return def
	}
	return strings.TrimSuffix(override, "/")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
