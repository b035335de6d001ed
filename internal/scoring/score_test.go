package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilience/internal/types"
)

func ptr(f float64) *float64 { return &f }

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside", 42.5, 42.5},
		{"negative", -3, 0},
		{"over", 250, 100},
		{"nan", math.NaN(), 0},
		{"+inf", math.Inf(1), 0},
		{"-inf", math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp(tt.in))
		})
	}
}

func TestWeatherScore(t *testing.T) {
	m := DefaultModel()

	assert.Equal(t, 0, m.WeatherScore(0, 0))
	assert.Equal(t, 46, m.WeatherScore(25, 10))
	assert.Equal(t, 100, m.WeatherScore(50, 25))
	assert.Equal(t, 100, m.WeatherScore(500, 90), "saturates")
	assert.Equal(t, 0, m.WeatherScore(-10, -4), "negative readings clamp")
}

func TestWeatherScore_Monotonic(t *testing.T) {
	m := DefaultModel()
	prev := -1
	for rain := 0.0; rain <= 80; rain += 2.5 {
		got := m.WeatherScore(rain, 5)
		assert.GreaterOrEqual(t, got, prev, "rain=%v", rain)
		prev = got
	}
	prev = -1
	for wind := 0.0; wind <= 40; wind++ {
		got := m.WeatherScore(10, wind)
		assert.GreaterOrEqual(t, got, prev, "wind=%v", wind)
		prev = got
	}
}

func TestEarthquakeScore(t *testing.T) {
	m := DefaultModel()
	for count, want := range map[int]int{0: 0, 1: 10, 5: 50, 10: 100, 20: 100} {
		assert.Equal(t, want, m.EarthquakeScore(count), "count=%d", count)
	}

	prev := -1
	for c := 0; c <= 30; c++ {
		got := m.EarthquakeScore(c)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestLevelFromScore(t *testing.T) {
	m := DefaultModel()
	tests := []struct {
		score int
		want  types.RiskLevel
	}{
		{0, types.RiskLevelLow},
		{39, types.RiskLevelLow},
		{40, types.RiskLevelMedium},
		{69, types.RiskLevelMedium},
		{70, types.RiskLevelHigh},
		{100, types.RiskLevelHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.LevelFromScore(tt.score), "score=%d", tt.score)
	}
}

func TestAdjustFloodByElevation(t *testing.T) {
	m := DefaultModel()

	assert.Equal(t, 65, m.AdjustFloodByElevation(50, ptr(10)))
	assert.Equal(t, 65, m.AdjustFloodByElevation(50, ptr(19.9)))
	assert.Equal(t, 58, m.AdjustFloodByElevation(50, ptr(20)))
	assert.Equal(t, 58, m.AdjustFloodByElevation(50, ptr(50)))
	assert.Equal(t, 50, m.AdjustFloodByElevation(50, ptr(100)))
	assert.Equal(t, 50, m.AdjustFloodByElevation(50, ptr(150)))
	assert.Equal(t, 50, m.AdjustFloodByElevation(50, nil))
	assert.Equal(t, 50, m.AdjustFloodByElevation(50, ptr(math.NaN())))
	assert.Equal(t, 100, m.AdjustFloodByElevation(95, ptr(-3)), "bonus never pushes past 100")
}

func TestRiskScore(t *testing.T) {
	m := DefaultModel()

	assert.Equal(t, 36, m.RiskScore(30, 60, 10))
	assert.Equal(t, 100, m.RiskScore(100, 100, 100))
	assert.Equal(t, 0, m.RiskScore(0, 0, 0))
	assert.Equal(t, 100, m.RiskScore(400, 1000, 250), "inputs are clamped first")
	assert.Equal(t, 0, m.RiskScore(-50, -1, math.NaN()))
}

func TestAssess_EndToEnd(t *testing.T) {
	m := DefaultModel()

	b := m.Assess(Inputs{
		RainfallMM:      25,
		WindSpeedMS:     10,
		EarthquakeCount: 5,
		FloodRiskIndex:  30,
	}, ptr(10))

	assert.Equal(t, Breakdown{
		Weather:        46,
		FloodBase:      30,
		ElevationBonus: 15,
		Flood:          45,
		Earthquake:     50,
		Risk:           47,
		Level:          types.RiskLevelMedium,
		ModelVersion:   "v1",
	}, b)
}

func TestAssess_NoElevation(t *testing.T) {
	b := DefaultModel().Assess(Inputs{RainfallMM: 60, WindSpeedMS: 30, EarthquakeCount: 12, FloodRiskIndex: 85}, nil)

	assert.Equal(t, 85, b.Flood)
	assert.Equal(t, 0.0, b.ElevationBonus)
	assert.Equal(t, 94, b.Risk)
	assert.Equal(t, types.RiskLevelHigh, b.Level)
}

func TestRecompute(t *testing.T) {
	score, level := DefaultModel().Recompute(30, 60, 10)
	assert.Equal(t, 36, score)
	assert.Equal(t, types.RiskLevelLow, level)
}

func TestFloodRiskIndex(t *testing.T) {
	m := DefaultModel()
	tests := []struct {
		rain, wind float64
		want       float64
	}{
		{0, 0, 5},
		{4.9, 7.9, 5},
		{5, 0, 20},
		{20, 8, 53},
		{49, 14, 53},
		{50, 15, 85},
		{300, 40, 85},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.FloodRiskIndex(tt.rain, tt.wind), "rain=%v wind=%v", tt.rain, tt.wind)
	}
}

func TestFloodRiskIndex_CappedAt100(t *testing.T) {
	m := DefaultModel()
	m.FloodIndex.RainfallTiers = []Tier{{Threshold: 0, Bonus: 95}}

	assert.Equal(t, 100.0, m.FloodRiskIndex(1, 20))
}

func TestModel_Validate(t *testing.T) {
	require.NoError(t, DefaultModel().Validate())

	bad := DefaultModel()
	bad.Weights.Flood = 0.5
	assert.ErrorContains(t, bad.Validate(), "weights must sum to 1")

	bad = DefaultModel()
	bad.Levels = LevelThresholds{Medium: 70, High: 40}
	assert.Error(t, bad.Validate())

	bad = DefaultModel()
	bad.Version = ""
	assert.Error(t, bad.Validate())

	bad = DefaultModel()
	bad.ElevationTiers = []Tier{{Threshold: 100, Bonus: 8}, {Threshold: 20, Bonus: 15}}
	assert.ErrorContains(t, bad.Validate(), "ascending")
}

func TestLoadModelFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: v2-flood-heavy
weights:
  weather: 0.2
  flood: 0.5
  earthquake: 0.3
levels:
  medium: 35
  high: 65
`), 0o600))

	m, err := LoadModelFile(path)
	require.NoError(t, err)

	assert.Equal(t, "v2-flood-heavy", m.Version)
	assert.Equal(t, 0.5, m.Weights.Flood)
	assert.Equal(t, 35, m.Levels.Medium)
	assert.Equal(t, 50.0, m.Weather.RainfallCeilingMM, "unset keys keep defaults")
	assert.Len(t, m.ElevationTiers, 2)
}

func TestLoadModelFile_Errors(t *testing.T) {
	_, err := LoadModelFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  flood: 0.9\n"), 0o600))
	_, err = LoadModelFile(path)
	assert.ErrorContains(t, err, "weights must sum to 1")
}
