package external

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilience/internal/types"
)

var manila = types.Location{Lat: 14.5995, Lng: 120.9842}

func TestOpenWeather_FetchWeather(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		q := r.URL.Query()
		query = map[string]string{"lat": q.Get("lat"), "lon": q.Get("lon"), "appid": q.Get("appid"), "units": q.Get("units")}
		w.Write([]byte(`{
			"main": {"temp": 29.4, "humidity": 81},
			"wind": {"speed": 6.2},
			"clouds": {"all": 75},
			"rain": {"3h": 12.5}
		}`))
	}))
	defer srv.Close()

	c := NewOpenWeatherClientWithBase(newTestBase(t, 0), WeatherClientConfig{APIKey: "ow-key", BaseURL: srv.URL})
	got, err := c.FetchWeather(context.Background(), manila)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"lat": "14.5995", "lon": "120.9842", "appid": "ow-key", "units": "metric"}, query)
	assert.Equal(t, &types.WeatherReading{
		TemperatureC:  29.4,
		WindSpeedMS:   6.2,
		RainfallMM:    12.5,
		HumidityPct:   81,
		CloudinessPct: 75,
		Source:        types.WeatherSourceOpenWeather,
	}, got)
}

func TestOpenWeather_PrefersOneHourRain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"main":{},"wind":{},"clouds":{},"rain":{"1h":3.1,"3h":9}}`))
	}))
	defer srv.Close()

	c := NewOpenWeatherClientWithBase(newTestBase(t, 0), WeatherClientConfig{APIKey: "k", BaseURL: srv.URL})
	got, err := c.FetchWeather(context.Background(), manila)
	require.NoError(t, err)
	assert.Equal(t, 3.1, got.RainfallMM)
}

func TestOpenWeather_MissingKey(t *testing.T) {
	c := NewOpenWeatherClientWithBase(newTestBase(t, 0), WeatherClientConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := c.FetchWeather(context.Background(), manila)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamWeather))
}

func TestOpenMeteo_FetchWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "ms", r.URL.Query().Get("wind_speed_unit"))
		assert.Contains(t, r.URL.Query().Get("current"), "cloud_cover")
		w.Write([]byte(`{"current":{
			"temperature_2m": 18.2,
			"precipitation": 0.4,
			"wind_speed_10m": 4.5,
			"relative_humidity_2m": 64,
			"cloud_cover": 30
		}}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClientWithBase(newTestBase(t, 0), WeatherClientConfig{BaseURL: srv.URL + "/"})
	got, err := c.FetchWeather(context.Background(), manila)
	require.NoError(t, err)
	assert.Equal(t, &types.WeatherReading{
		TemperatureC:  18.2,
		WindSpeedMS:   4.5,
		RainfallMM:    0.4,
		HumidityPct:   64,
		CloudinessPct: 30,
		Source:        types.WeatherSourceOpenMeteo,
	}, got)
}

type fakeWeather struct {
	reading *types.WeatherReading
	err     error
	calls   int
}

func (f *fakeWeather) FetchWeather(context.Context, types.Location) (*types.WeatherReading, error) {
	f.calls++
	return f.reading, f.err
}

func TestFallbackWeather(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ok := &types.WeatherReading{Source: types.WeatherSourceOpenMeteo}

	t.Run("primary succeeds", func(t *testing.T) {
		primary := &fakeWeather{reading: &types.WeatherReading{Source: types.WeatherSourceOpenWeather}}
		secondary := &fakeWeather{reading: ok}
		got, err := NewFallbackWeather(logger, primary, secondary).FetchWeather(context.Background(), manila)
		require.NoError(t, err)
		assert.Equal(t, types.WeatherSourceOpenWeather, got.Source)
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("falls back", func(t *testing.T) {
		primary := &fakeWeather{err: errors.New("401")}
		got, err := NewFallbackWeather(logger, primary, &fakeWeather{reading: ok}).FetchWeather(context.Background(), manila)
		require.NoError(t, err)
		assert.Equal(t, types.WeatherSourceOpenMeteo, got.Source)
	})

	t.Run("nil primary skipped", func(t *testing.T) {
		got, err := NewFallbackWeather(logger, nil, &fakeWeather{reading: ok}).FetchWeather(context.Background(), manila)
		require.NoError(t, err)
		assert.Same(t, ok, got)
	})

	t.Run("all fail", func(t *testing.T) {
		e1, e2 := errors.New("ow down"), errors.New("om down")
		_, err := NewFallbackWeather(logger, &fakeWeather{err: e1}, &fakeWeather{err: e2}).FetchWeather(context.Background(), manila)
		assert.True(t, types.IsCode(err, types.ErrCodeUpstreamWeather))
		assert.ErrorIs(t, err, e1)
		assert.ErrorIs(t, err, e2)
	})

	t.Run("invalid coordinates never call out", func(t *testing.T) {
		primary := &fakeWeather{reading: ok}
		_, err := NewFallbackWeather(logger, primary).FetchWeather(context.Background(), types.Location{Lat: 95, Lng: 10})
		assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidLat))
		assert.Equal(t, 0, primary.calls)
	})
}
