package external

import (
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"resilience/internal/config"
)

// Registry holds the provider clients the ingest and assessment paths use.
// Elevation is nil when ELEVATION_PROVIDER=none.
type Registry struct {
	Weather   WeatherSource
	Seismic   SeismicSource
	Elevation ElevationSource
}

// NewRegistry builds provider clients from configuration. In test mode every
// provider is a stub. Otherwise each provider gets its own http.Client with
// the configured timeout, and elevation lookups are rate limited and cached.
func NewRegistry(cfg *config.Config, logger *slog.Logger, observer CallObserver) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IsTestMode {
		logger.Info("initializing external providers in STUB mode")
		return &Registry{
			Weather:   NewStubWeather(logger),
			Seismic:   NewStubSeismic(logger),
			Elevation: NewStubElevation(logger),
		}
	}

	p := cfg.Providers
	newBase := func(name string, c *http.Client) *BaseClient {
		return NewBaseClient(c, name, WithObserver(observer))
	}
	weatherHTTP := &http.Client{Timeout: p.WeatherTimeout}

	var primary WeatherSource
	if p.OpenWeatherAPIKey.IsSet() {
		primary = NewOpenWeatherClientWithBase(newBase(ProviderOpenWeather, weatherHTTP), WeatherClientConfig{
			APIKey:  p.OpenWeatherAPIKey,
			BaseURL: p.OpenWeatherBaseURL,
		})
	} else {
		logger.Warn("OPENWEATHER_API_KEY not set; using Open-Meteo only")
	}
	fallback := NewOpenMeteoClientWithBase(newBase(ProviderOpenMeteo, weatherHTTP), WeatherClientConfig{
		BaseURL: p.OpenMeteoBaseURL,
	})

	reg := &Registry{
		Weather: NewFallbackWeather(logger, primary, fallback),
		Seismic: NewUSGSClientWithBase(
			newBase(ProviderUSGS, &http.Client{Timeout: p.SeismicTimeout}),
			USGSClientConfig{BaseURL: p.USGSBaseURL},
		),
	}

	elevHTTP := &http.Client{Timeout: p.ElevationTimeout}
	var elev ElevationSource
	switch p.ElevationProvider {
	case "google":
		if !p.GoogleElevationAPIKey.IsSet() {
			logger.Warn("ELEVATION_PROVIDER=google without GOOGLE_ELEVATION_API_KEY; elevation disabled")
			return reg
		}
		elev = NewGoogleElevationClientWithBase(newBase(ProviderGoogleElevation, elevHTTP), ElevationClientConfig{
			APIKey:  p.GoogleElevationAPIKey,
			BaseURL: p.ElevationBaseURL,
		})
	case "none":
		return reg
	default:
		elev = NewOpenMeteoElevationClientWithBase(newBase(ProviderOpenMeteoElevation, elevHTTP), ElevationClientConfig{
			BaseURL: p.ElevationBaseURL,
		})
	}

	limiter := rate.NewLimiter(rate.Limit(p.ElevationRatePerSec), 1)
	reg.Elevation = NewCachedElevation(NewRateLimitedElevation(elev, limiter), clockwork.NewRealClock(), p.ElevationCacheTTL)
	return reg
}
