package types

// RiskLevel is the discrete banding of a composite risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// HazardCategory classifies a mitigation recommendation.
type HazardCategory string

const (
	CategoryFlood      HazardCategory = "FLOOD"
	CategoryEarthquake HazardCategory = "EARTHQUAKE"
	CategoryWeather    HazardCategory = "WEATHER"
	CategoryGeneral    HazardCategory = "GENERAL"
)

// Valid reports whether c is one of the known categories.
func (c HazardCategory) Valid() bool {
	switch c {
	case CategoryFlood, CategoryEarthquake, CategoryWeather, CategoryGeneral:
		return true
	}
	return false
}

// RecommendationStatus tracks whether a recommendation has been acted on.
type RecommendationStatus string

const (
	RecommendationPending RecommendationStatus = "PENDING"
	RecommendationDone    RecommendationStatus = "DONE"
)

// Valid reports whether s is one of the known statuses.
func (s RecommendationStatus) Valid() bool {
	return s == RecommendationPending || s == RecommendationDone
}

// AIProviderTag records which generator produced a mitigation plan.
type AIProviderTag string

const (
	AIProviderNone      AIProviderTag = "NONE"
	AIProviderAnthropic AIProviderTag = "ANTHROPIC"
)

// Weather data source tags written onto snapshots.
const (
	WeatherSourceOpenWeather = "OpenWeather"
	WeatherSourceOpenMeteo   = "OpenMeteo"
)
