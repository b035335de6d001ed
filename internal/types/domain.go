package types

import "time"

// Location is a WGS84 coordinate pair. The zero value (0,0) is treated as
// "unset" throughout the service.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsSet reports whether the location carries real coordinates.
func (l Location) IsSet() bool {
	return !(l.Lat == 0 && l.Lng == 0)
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 || l.Lat != l.Lat {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidLat,
			"latitude must be between -90 and 90", nil,
			map[string]any{"lat": l.Lat})
	}
	if l.Lng < -180 || l.Lng > 180 || l.Lng != l.Lng {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidLon,
			"longitude must be between -180 and 180", nil,
			map[string]any{"lng": l.Lng})
	}
	return nil
}

// EnvironmentalSnapshot is one ingested reading of environmental signals for
// a project's location. Snapshots are append-only per project.
type EnvironmentalSnapshot struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	RainfallMM       float64   `json:"rainfall_mm"`
	WindSpeedMS      float64   `json:"wind_speed_ms"`
	TemperatureC     float64   `json:"temperature_c"`
	HumidityPct      float64   `json:"humidity_pct"`
	CloudinessPct    float64   `json:"cloudiness_pct"`
	EarthquakeCount  int       `json:"earthquake_count"`
	FloodRiskIndex   float64   `json:"flood_risk_index"`
	Source           string    `json:"source"`
	SeismicAvailable bool      `json:"seismic_available"`
	Location         Location  `json:"location"`
	FetchedAt        time.Time `json:"fetched_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// WeatherReading is the normalized output of a weather provider.
type WeatherReading struct {
	TemperatureC  float64 `json:"temperature_c"`
	WindSpeedMS   float64 `json:"wind_speed_ms"`
	RainfallMM    float64 `json:"rainfall_mm"`
	HumidityPct   float64 `json:"humidity_pct"`
	CloudinessPct float64 `json:"cloudiness_pct"`
	Source        string  `json:"source"`
}

// SeismicQuery parameterizes an event count lookup.
type SeismicQuery struct {
	Location     Location
	WindowDays   int
	RadiusKm     float64
	MinMagnitude float64
}

// RiskAssessment is one scoring run for a project.
type RiskAssessment struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	SnapshotID      *string   `json:"snapshot_id,omitempty"`
	WeatherScore    int       `json:"weather_score"`
	FloodScore      int       `json:"flood_score"`
	EarthquakeScore int       `json:"earthquake_score"`
	RiskScore       int       `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	ModelVersion    string    `json:"model_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Recommendation is a single categorized mitigation action.
type Recommendation struct {
	Title    string               `json:"title"`
	Details  string               `json:"details"`
	Category HazardCategory       `json:"category"`
	Status   RecommendationStatus `json:"status"`
}

// MitigationPlan is derived from one RiskAssessment. Recommendations is
// never empty.
type MitigationPlan struct {
	ID              string           `json:"id"`
	ProjectID       string           `json:"project_id"`
	AssessmentID    *string          `json:"assessment_id,omitempty"`
	PriorityLevel   RiskLevel        `json:"priority_level"`
	Recommendations []Recommendation `json:"recommendations"`
	CreatedBy       string           `json:"created_by"`
	AIProvider      AIProviderTag    `json:"ai_provider"`
	PromptVersion   string           `json:"prompt_version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// AssessmentEvent is published after an assessment is persisted.
type AssessmentEvent struct {
	EventID    string         `json:"event_id"`
	TraceID    string         `json:"trace_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Assessment RiskAssessment `json:"assessment"`
}
