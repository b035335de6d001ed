package scoring

import (
	"math"

	"resilience/internal/types"
)

const (
	minScore = 0
	maxScore = 100
)

// Clamp bounds x to [0,100]. NaN and infinities coerce to 0 first so every
// function in this package is total over float64.
func Clamp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Max(minScore, math.Min(maxScore, x))
}

// round is half-up rounding, so 45.5 becomes 46 and -0.5 becomes 0.
func round(x float64) float64 {
	return math.Floor(x + 0.5)
}

func clampInt(x float64) int {
	return int(Clamp(round(x)))
}

// WeatherScore normalizes rainfall and wind against the model ceilings and
// blends them by the rain/wind shares.
func (m Model) WeatherScore(rainfallMM, windSpeedMS float64) int {
	rain := Clamp(rainfallMM / m.Weather.RainfallCeilingMM * 100)
	wind := Clamp(windSpeedMS / m.Weather.WindCeilingMS * 100)
	return clampInt(rain*m.Weather.RainShare + wind*m.Weather.WindShare)
}

// EarthquakeScore maps an event count linearly onto [0,100], saturating at
// the model's count ceiling.
func (m Model) EarthquakeScore(count int) int {
	return clampInt(float64(count) / m.EarthquakeCountCeiling * 100)
}

// FloodBaseScore passes the stored flood risk index through Clamp.
func (m Model) FloodBaseScore(floodRiskIndex float64) int {
	return clampInt(floodRiskIndex)
}

// ElevationBonus returns the additive flood bonus for an elevation in
// meters. Unknown elevation yields 0.
func (m Model) ElevationBonus(elevation *float64) float64 {
	if elevation == nil || math.IsNaN(*elevation) {
		return 0
	}
	for _, tier := range m.ElevationTiers {
		if *elevation < tier.Threshold {
			return tier.Bonus
		}
	}
	return 0
}

// AdjustFloodByElevation applies the elevation bonus to a flood base score.
func (m Model) AdjustFloodByElevation(floodBase float64, elevation *float64) int {
	return clampInt(Clamp(floodBase) + m.ElevationBonus(elevation))
}

// RiskScore is the weighted composite of the three sub-scores. Inputs are
// clamped before weighting.
func (m Model) RiskScore(weather, flood, earthquake float64) int {
	return clampInt(Clamp(weather)*m.Weights.Weather +
		Clamp(flood)*m.Weights.Flood +
		Clamp(earthquake)*m.Weights.Earthquake)
}

// LevelFromScore bands a composite score. Thresholds are inclusive lower
// edges.
func (m Model) LevelFromScore(score int) types.RiskLevel {
	switch {
	case score >= m.Levels.High:
		return types.RiskLevelHigh
	case score >= m.Levels.Medium:
		return types.RiskLevelMedium
	default:
		return types.RiskLevelLow
	}
}

// FloodRiskIndex is the ingestion-time heuristic stored on each snapshot.
func (m Model) FloodRiskIndex(rainfallMM, windSpeedMS float64) float64 {
	index := m.FloodIndex.Base
	for _, tier := range m.FloodIndex.RainfallTiers {
		if rainfallMM >= tier.Threshold {
			index = tier.Bonus
			break
		}
	}
	for _, tier := range m.FloodIndex.WindTiers {
		if windSpeedMS >= tier.Threshold {
			index += tier.Bonus
			break
		}
	}
	return math.Min(index, maxScore)
}

// Inputs are the snapshot fields the formula reads.
type Inputs struct {
	RainfallMM      float64
	WindSpeedMS     float64
	EarthquakeCount int
	FloodRiskIndex  float64
}

// InputsFromSnapshot extracts scoring inputs from a stored snapshot.
func InputsFromSnapshot(s *types.EnvironmentalSnapshot) Inputs {
	return Inputs{
		RainfallMM:      s.RainfallMM,
		WindSpeedMS:     s.WindSpeedMS,
		EarthquakeCount: s.EarthquakeCount,
		FloodRiskIndex:  s.FloodRiskIndex,
	}
}

// Breakdown is the full, explainable result of one scoring run.
type Breakdown struct {
	Weather        int             `json:"weather_score"`
	FloodBase      int             `json:"flood_base_score"`
	ElevationBonus float64         `json:"elevation_bonus"`
	Flood          int             `json:"flood_score"`
	Earthquake     int             `json:"earthquake_score"`
	Risk           int             `json:"risk_score"`
	Level          types.RiskLevel `json:"risk_level"`
	ModelVersion   string          `json:"model_version"`
}

// Assess runs the full pipeline: sub-scores, elevation adjustment,
// aggregation and banding.
func (m Model) Assess(in Inputs, elevation *float64) Breakdown {
	b := Breakdown{
		Weather:        m.WeatherScore(in.RainfallMM, in.WindSpeedMS),
		FloodBase:      m.FloodBaseScore(in.FloodRiskIndex),
		ElevationBonus: m.ElevationBonus(elevation),
		Earthquake:     m.EarthquakeScore(in.EarthquakeCount),
		ModelVersion:   m.Version,
	}
	b.Flood = m.AdjustFloodByElevation(float64(b.FloodBase), elevation)
	b.Risk = m.RiskScore(float64(b.Weather), float64(b.Flood), float64(b.Earthquake))
	b.Level = m.LevelFromScore(b.Risk)
	return b
}

// Recompute rebuilds the composite score and level from already-normalized
// sub-scores. Used when an operator edits an assessment.
func (m Model) Recompute(weather, flood, earthquake int) (int, types.RiskLevel) {
	score := m.RiskScore(float64(weather), float64(flood), float64(earthquake))
	return score, m.LevelFromScore(score)
}
