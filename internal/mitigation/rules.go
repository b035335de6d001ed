// Package mitigation turns a risk assessment into a prioritized list of
// mitigation recommendations, either from fixed rules or from an LLM with the
// rules as fallback.
package mitigation

import "resilience/internal/types"

// PromptVersion tags plans with the generation contract that produced them.
const PromptVersion = "v1"

// Rule thresholds. A sub-score strictly above the threshold triggers the
// category's recommendation.
const (
	FloodThreshold      = 20
	EarthquakeThreshold = 20
	WeatherThreshold    = 15
)

// Input is the slice of an assessment the generators read.
type Input struct {
	RiskLevel       types.RiskLevel
	RiskScore       int
	WeatherScore    int
	FloodScore      int
	EarthquakeScore int
}

// InputFromAssessment extracts generator input from a stored assessment.
func InputFromAssessment(a *types.RiskAssessment) Input {
	return Input{
		RiskLevel:       a.RiskLevel,
		RiskScore:       a.RiskScore,
		WeatherScore:    a.WeatherScore,
		FloodScore:      a.FloodScore,
		EarthquakeScore: a.EarthquakeScore,
	}
}

var (
	floodRecommendation = types.Recommendation{
		Title:    "Improve Drainage System",
		Details:  "Install additional stormwater channels and flood barriers.",
		Category: types.CategoryFlood,
	}
	earthquakeRecommendation = types.Recommendation{
		Title:    "Reinforce Structural Design",
		Details:  "Use earthquake-resistant materials and structural reinforcements.",
		Category: types.CategoryEarthquake,
	}
	weatherRecommendation = types.Recommendation{
		Title:    "Weatherproof Infrastructure",
		Details:  "Use weather-resistant materials and protective coatings.",
		Category: types.CategoryWeather,
	}
	generalRecommendation = types.Recommendation{
		Title:    "General Risk Monitoring",
		Details:  "Continue periodic monitoring and preventive maintenance.",
		Category: types.CategoryGeneral,
	}
)

// RuleBased returns the deterministic recommendations for in, in FLOOD,
// EARTHQUAKE, WEATHER order. The result is never empty.
func RuleBased(in Input) []types.Recommendation {
	var recs []types.Recommendation
	if in.FloodScore > FloodThreshold {
		recs = append(recs, floodRecommendation)
	}
	if in.EarthquakeScore > EarthquakeThreshold {
		recs = append(recs, earthquakeRecommendation)
	}
	if in.WeatherScore > WeatherThreshold {
		recs = append(recs, weatherRecommendation)
	}
	if len(recs) == 0 {
		recs = append(recs, generalRecommendation)
	}
	return markPending(recs)
}

func markPending(recs []types.Recommendation) []types.Recommendation {
	for i := range recs {
		recs[i].Status = types.RecommendationPending
	}
	return recs
}
