// Package config defines the configuration structure for the Storm Surge
// scaling middleware. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the process to exit
// non-zero immediately on startup (fail fast).
package config

import (
	"time"

	"stormsurge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the middleware.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"stormsurge-middleware"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Flag      FlagConfig
	Spot      SpotConfig
	Policy    PolicyConfig
	Loop      LoopConfig
	Schedule  ScheduleConfig
	Telemetry TelemetryConfig

	// Build Metadata (injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string   `envconfig:"PORT" default:"8000"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,https://storm-surge.local"`
}

// FlagConfig selects the feature-flag provider and its webhook credentials.
type FlagConfig struct {
	Provider      string       `envconfig:"FEATURE_FLAG_PROVIDER" default:"launchdarkly" validate:"oneof=launchdarkly statsig"`
	WebhookSecret SecretString `envconfig:"WEBHOOK_SECRET"` // empty => insecure mode (loud startup warning)
}

// SpotConfig holds the external elastic-compute (Spot Ocean) API settings.
type SpotConfig struct {
	APIBaseURL     string        `envconfig:"SPOT_API_BASE_URL" default:"https://api.spotinst.io/ocean/k8s" validate:"url"`
	APIToken       SecretString  `envconfig:"SPOT_API_TOKEN" validate:"required"`
	ClusterID      string        `envconfig:"SPOT_CLUSTER_ID" validate:"required"`
	RequestTimeout time.Duration `envconfig:"SPOT_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries     int           `envconfig:"SPOT_MAX_RETRIES" default:"3"`
	BackoffBase    time.Duration `envconfig:"SPOT_BACKOFF_BASE" default:"1s"`
	BackoffCap     time.Duration `envconfig:"SPOT_BACKOFF_CAP" default:"8s"`
}

// PolicyConfig holds the scaling decision policy. The 0.8/1.2 factors match
// the product's cost-optimization behavior; bounds are configured rather than
// hardcoded so clusters of different sizes can reuse the same middleware.
type PolicyConfig struct {
	MinReplicas         int     `envconfig:"CLUSTER_MIN_REPLICAS" default:"1" validate:"min=0"`
	MaxReplicas         int     `envconfig:"CLUSTER_MAX_REPLICAS" default:"10" validate:"min=1"`
	ScaleDownFactor     float64 `envconfig:"SCALE_DOWN_FACTOR" default:"0.8" validate:"gt=0,lt=1"`
	ScaleUpFactor       float64 `envconfig:"SCALE_UP_FACTOR" default:"1.2" validate:"gt=1"`
	CostImpactThreshold float64 `envconfig:"COST_IMPACT_THRESHOLD" default:"0.05"`
}

// LoopConfig tunes the control loop's idempotency and serialization behavior.
type LoopConfig struct {
	DedupWindow time.Duration `envconfig:"DEDUP_WINDOW" default:"60s"`
	LockWait    time.Duration `envconfig:"LOCK_WAIT_TIMEOUT" default:"15s"`
}

// ScheduleConfig defines the business-hours window for the schedule trigger.
// Times are "HH:MM" in the configured IANA timezone.
type ScheduleConfig struct {
	BusinessStart string `envconfig:"BUSINESS_HOURS_START" default:"06:00"`
	BusinessEnd   string `envconfig:"BUSINESS_HOURS_END" default:"18:00"`
	Timezone      string `envconfig:"BUSINESS_HOURS_TIMEZONE" default:"UTC"`
}

// TelemetryConfig selects the telemetry sink and its credentials.
// Provider "auto" follows the feature-flag provider; "disabled" turns the
// sink off entirely.
type TelemetryConfig struct {
	Provider           string        `envconfig:"LOGGING_PROVIDER" default:"auto" validate:"oneof=auto launchdarkly statsig disabled"`
	LaunchDarklySDKKey SecretString  `envconfig:"LAUNCHDARKLY_SDK_KEY"`
	StatsigServerKey   SecretString  `envconfig:"STATSIG_SERVER_KEY"`
	BatchSize          int           `envconfig:"TELEMETRY_BATCH_SIZE" default:"100" validate:"min=1"`
	FlushTimeout       time.Duration `envconfig:"TELEMETRY_FLUSH_TIMEOUT" default:"10s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
