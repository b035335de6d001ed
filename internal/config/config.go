// Package config defines the process configuration for the risk service.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (highest) -> .env file -> *_SECRET_REF indirection (lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"resilience/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for credential fields.
type SecretString = types.SecretString

// Config is the top-level configuration. Sub-components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"resilience-risk"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Kafka         KafkaConfig
	Providers     ProvidersConfig
	Seismic       SeismicConfig
	Scoring       ScoringConfig
	Mitigation    MitigationConfig
	Feature       FeatureConfig
	Maintenance   MaintenanceConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds the Postgres DSN and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS identifiers for the SQS event transport and the
// worker's CloudWatch metrics.
type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" default:"us-east-1"`
	AssessmentQueueURL string `envconfig:"SQS_ASSESSMENT_EVENTS" validate:"omitempty,url"`
	// LocalStack endpoint; empty in deployed environments.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// KafkaConfig configures the Kafka event transport.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_ASSESSMENT_TOPIC" default:"risk.assessments"`
}

// ProvidersConfig holds credentials, endpoints and timeouts of the external
// data providers. Base URL overrides are empty in production.
type ProvidersConfig struct {
	OpenWeatherAPIKey  SecretString  `envconfig:"OPENWEATHER_API_KEY"`
	OpenWeatherBaseURL string        `envconfig:"OPENWEATHER_BASE_URL" validate:"omitempty,url"`
	OpenMeteoBaseURL   string        `envconfig:"OPEN_METEO_BASE_URL" validate:"omitempty,url"`
	USGSBaseURL        string        `envconfig:"USGS_BASE_URL" validate:"omitempty,url"`
	WeatherTimeout     time.Duration `envconfig:"WEATHER_TIMEOUT" default:"20s"`
	SeismicTimeout     time.Duration `envconfig:"SEISMIC_TIMEOUT" default:"15s"`

	ElevationProvider     string        `envconfig:"ELEVATION_PROVIDER" default:"open-meteo" validate:"oneof=open-meteo google none"`
	GoogleElevationAPIKey SecretString  `envconfig:"GOOGLE_ELEVATION_API_KEY"`
	ElevationBaseURL      string        `envconfig:"ELEVATION_BASE_URL" validate:"omitempty,url"`
	ElevationTimeout      time.Duration `envconfig:"ELEVATION_TIMEOUT" default:"10s"`
	ElevationRatePerSec   float64       `envconfig:"ELEVATION_RATE_PER_SEC" default:"5" validate:"gt=0"`
	ElevationCacheTTL     time.Duration `envconfig:"ELEVATION_CACHE_TTL" default:"24h"`
}

// SeismicConfig parameterizes the event count lookup on ingestion.
type SeismicConfig struct {
	WindowDays   int     `envconfig:"SEISMIC_WINDOW_DAYS" default:"7" validate:"min=1,max=30"`
	RadiusKm     float64 `envconfig:"SEISMIC_RADIUS_KM" default:"100" validate:"gt=0,lte=20001.6"`
	MinMagnitude float64 `envconfig:"SEISMIC_MIN_MAGNITUDE" default:"0" validate:"min=0"`
}

// ScoringConfig selects the scoring model and the ingestion cooldown.
type ScoringConfig struct {
	// Optional YAML file layered over the built-in model.
	ModelFile string `envconfig:"SCORING_MODEL_FILE"`
	// Overrides the version tag of whichever model is loaded.
	ModelVersion      string        `envconfig:"SCORING_MODEL_VERSION"`
	FreshnessCooldown time.Duration `envconfig:"FRESHNESS_COOLDOWN" default:"10m"`
}

// MitigationConfig configures plan generation.
type MitigationConfig struct {
	AIProvider       string        `envconfig:"MITIGATION_AI_PROVIDER" default:"none" validate:"oneof=none anthropic"`
	AnthropicAPIKey  SecretString  `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel   string        `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	AnthropicBaseURL string        `envconfig:"ANTHROPIC_BASE_URL" validate:"omitempty,url"`
	AIMaxTokens      int64         `envconfig:"MITIGATION_AI_MAX_TOKENS" default:"1024" validate:"min=128"`
	AITimeout        time.Duration `envconfig:"MITIGATION_AI_TIMEOUT" default:"30s"`
}

// FeatureConfig holds toggles for optional side effects.
type FeatureConfig struct {
	ProjectStatusSync bool   `envconfig:"FEATURE_PROJECT_STATUS_SYNC" default:"false"`
	AssessmentEvents  bool   `envconfig:"FEATURE_ASSESSMENT_EVENTS" default:"false"`
	EventTransport    string `envconfig:"EVENT_TRANSPORT" default:"sqs" validate:"oneof=sqs kafka"`
}

// MaintenanceConfig tunes the scheduled maintenance tasks.
type MaintenanceConfig struct {
	SnapshotRetention time.Duration `envconfig:"SNAPSHOT_RETENTION" default:"2160h"`
	PurgeBatchSize    int           `envconfig:"PURGE_BATCH_SIZE" default:"500" validate:"min=1,max=10000"`
	RefreshStaleAfter time.Duration `envconfig:"REFRESH_STALE_AFTER" default:"6h"`
	RefreshBatchLimit int           `envconfig:"REFRESH_BATCH_LIMIT" default:"50" validate:"min=1,max=1000"`
	RefreshWorkers    int           `envconfig:"REFRESH_WORKERS" default:"4" validate:"min=1,max=32"`
	// Score each refreshed snapshot right away.
	RefreshReassess bool          `envconfig:"REFRESH_REASSESS" default:"true"`
	LockTTL         time.Duration `envconfig:"MAINTENANCE_LOCK_TTL" default:"15m"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Resilience"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv       ConfigErrorType = "MISSING_ENV"
	ErrSecretResolution ConfigErrorType = "SECRET_RESOLUTION_FAILED"
	ErrValidation       ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing          ConfigErrorType = "PARSING_FAILED"
)
