// Package scoring turns environmental readings into bounded sub-scores, a
// weighted composite risk score and a discrete risk level.
//
// Every constant the formulas depend on lives in a Model value. Callers hold
// one Model (usually DefaultModel, optionally overridden from a YAML file) and
// pass it explicitly; nothing in this package reads process state.
package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultModelVersion is stamped on assessments produced by DefaultModel.
const DefaultModelVersion = "v1"

// Weights are the composite-score shares of each sub-score. They must sum
// to 1.
type Weights struct {
	Weather    float64 `yaml:"weather"`
	Flood      float64 `yaml:"flood"`
	Earthquake float64 `yaml:"earthquake"`
}

// WeatherParams normalizes rainfall and wind speed against fixed ceilings.
type WeatherParams struct {
	RainfallCeilingMM float64 `yaml:"rainfall_ceiling_mm"`
	WindCeilingMS     float64 `yaml:"wind_ceiling_ms"`
	RainShare         float64 `yaml:"rain_share"`
	WindShare         float64 `yaml:"wind_share"`
}

// Tier is one step of a threshold table. Whether a value matches by being
// below or at-or-above Threshold depends on the table using it.
type Tier struct {
	Threshold float64 `yaml:"threshold"`
	Bonus     float64 `yaml:"bonus"`
}

// LevelThresholds are the inclusive lower edges of the MEDIUM and HIGH bands.
type LevelThresholds struct {
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// FloodIndexParams drive the ingestion-time flood risk index heuristic.
// Rainfall tiers are checked in order with ">=" and the first match wins;
// Base applies when none match. Wind tiers add on top the same way.
type FloodIndexParams struct {
	RainfallTiers []Tier  `yaml:"rainfall_tiers"`
	Base          float64 `yaml:"base"`
	WindTiers     []Tier  `yaml:"wind_tiers"`
}

// Model is the complete, versioned parameter set of the scoring formula.
// ElevationTiers are checked in order with "<" and the first match wins.
type Model struct {
	Version                string           `yaml:"version"`
	Weights                Weights          `yaml:"weights"`
	Weather                WeatherParams    `yaml:"weather"`
	EarthquakeCountCeiling float64          `yaml:"earthquake_count_ceiling"`
	ElevationTiers         []Tier           `yaml:"elevation_tiers"`
	Levels                 LevelThresholds  `yaml:"levels"`
	FloodIndex             FloodIndexParams `yaml:"flood_index"`
}

// DefaultModel returns the canonical 30/40/30 model.
func DefaultModel() Model {
	return Model{
		Version: DefaultModelVersion,
		Weights: Weights{Weather: 0.3, Flood: 0.4, Earthquake: 0.3},
		Weather: WeatherParams{
			RainfallCeilingMM: 50,
			WindCeilingMS:     25,
			RainShare:         0.6,
			WindShare:         0.4,
		},
		EarthquakeCountCeiling: 10,
		ElevationTiers: []Tier{
			{Threshold: 20, Bonus: 15},
			{Threshold: 100, Bonus: 8},
		},
		Levels: LevelThresholds{Medium: 40, High: 70},
		FloodIndex: FloodIndexParams{
			RainfallTiers: []Tier{
				{Threshold: 50, Bonus: 70},
				{Threshold: 20, Bonus: 45},
				{Threshold: 5, Bonus: 20},
			},
			Base: 5,
			WindTiers: []Tier{
				{Threshold: 15, Bonus: 15},
				{Threshold: 8, Bonus: 8},
			},
		},
	}
}

const weightTolerance = 1e-9

// Validate reports the first inconsistency in m.
func (m Model) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("scoring model: version is required")
	}
	sum := m.Weights.Weather + m.Weights.Flood + m.Weights.Earthquake
	if sum < 1-weightTolerance || sum > 1+weightTolerance {
		return fmt.Errorf("scoring model %s: weights must sum to 1, got %.4f", m.Version, sum)
	}
	if m.Weights.Weather < 0 || m.Weights.Flood < 0 || m.Weights.Earthquake < 0 {
		return fmt.Errorf("scoring model %s: weights must be non-negative", m.Version)
	}
	if m.Weather.RainfallCeilingMM <= 0 || m.Weather.WindCeilingMS <= 0 {
		return fmt.Errorf("scoring model %s: weather ceilings must be positive", m.Version)
	}
	if m.EarthquakeCountCeiling <= 0 {
		return fmt.Errorf("scoring model %s: earthquake ceiling must be positive", m.Version)
	}
	if m.Levels.Medium <= 0 || m.Levels.High <= m.Levels.Medium || m.Levels.High > 100 {
		return fmt.Errorf("scoring model %s: level thresholds must satisfy 0 < medium < high <= 100", m.Version)
	}
	for i := 1; i < len(m.ElevationTiers); i++ {
		if m.ElevationTiers[i].Threshold <= m.ElevationTiers[i-1].Threshold {
			return fmt.Errorf("scoring model %s: elevation tiers must be ascending", m.Version)
		}
	}
	return nil
}

// LoadModelFile reads a YAML document and layers it over DefaultModel. Keys
// absent from the file keep their default value; lists replace the default
// list wholesale.
func LoadModelFile(path string) (Model, error) {
	m := DefaultModel()
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("read scoring model %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Model{}, fmt.Errorf("parse scoring model %q: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}
