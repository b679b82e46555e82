package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// setRequiredTestEnv sets the minimum environment for a valid Config.
// t.Setenv restores prior values automatically after the test.
func setRequiredTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("SPOT_API_TOKEN", "spot_test_token_abc123")
	t.Setenv("SPOT_CLUSTER_ID", "o-1234abcd")
}

func TestLoad_Success_Defaults(t *testing.T) {
	setRequiredTestEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("Server.Port = %q, want 8000", cfg.Server.Port)
	}
	if cfg.Flag.Provider != "launchdarkly" {
		t.Errorf("Flag.Provider = %q, want launchdarkly", cfg.Flag.Provider)
	}
	if cfg.Spot.APIBaseURL != "https://api.spotinst.io/ocean/k8s" {
		t.Errorf("Spot.APIBaseURL = %q", cfg.Spot.APIBaseURL)
	}
	if cfg.Spot.MaxRetries != 3 {
		t.Errorf("Spot.MaxRetries = %d, want 3", cfg.Spot.MaxRetries)
	}
	if cfg.Spot.BackoffBase != time.Second {
		t.Errorf("Spot.BackoffBase = %v, want 1s", cfg.Spot.BackoffBase)
	}
	if cfg.Policy.MinReplicas != 1 || cfg.Policy.MaxReplicas != 10 {
		t.Errorf("Policy bounds = [%d,%d], want [1,10]", cfg.Policy.MinReplicas, cfg.Policy.MaxReplicas)
	}
	if cfg.Policy.ScaleDownFactor != 0.8 || cfg.Policy.ScaleUpFactor != 1.2 {
		t.Errorf("Policy factors = %v/%v, want 0.8/1.2", cfg.Policy.ScaleDownFactor, cfg.Policy.ScaleUpFactor)
	}
	if cfg.Loop.DedupWindow != 60*time.Second {
		t.Errorf("Loop.DedupWindow = %v, want 60s", cfg.Loop.DedupWindow)
	}
	if cfg.Schedule.BusinessStart != "06:00" || cfg.Schedule.BusinessEnd != "18:00" {
		t.Errorf("Schedule window = %s-%s, want 06:00-18:00", cfg.Schedule.BusinessStart, cfg.Schedule.BusinessEnd)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("Schedule.Timezone = %q, want UTC", cfg.Schedule.Timezone)
	}
	if cfg.Telemetry.Provider != "auto" {
		t.Errorf("Telemetry.Provider = %q, want auto", cfg.Telemetry.Provider)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("FEATURE_FLAG_PROVIDER", "statsig")
	t.Setenv("CLUSTER_MIN_REPLICAS", "2")
	t.Setenv("CLUSTER_MAX_REPLICAS", "50")
	t.Setenv("SPOT_REQUEST_TIMEOUT", "30s")
	t.Setenv("BUSINESS_HOURS_TIMEZONE", "America/New_York")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Flag.Provider != "statsig" {
		t.Errorf("Flag.Provider = %q, want statsig", cfg.Flag.Provider)
	}
	if cfg.Policy.MinReplicas != 2 || cfg.Policy.MaxReplicas != 50 {
		t.Errorf("Policy bounds = [%d,%d], want [2,50]", cfg.Policy.MinReplicas, cfg.Policy.MaxReplicas)
	}
	if cfg.Spot.RequestTimeout != 30*time.Second {
		t.Errorf("Spot.RequestTimeout = %v, want 30s", cfg.Spot.RequestTimeout)
	}
	if cfg.Schedule.Timezone != "America/New_York" {
		t.Errorf("Schedule.Timezone = %q", cfg.Schedule.Timezone)
	}
}

func TestLoad_MissingSpotToken(t *testing.T) {
	t.Setenv("SPOT_API_TOKEN", "")
	t.Setenv("SPOT_CLUSTER_ID", "o-1234abcd")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing SPOT_API_TOKEN")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cfgErr.Type != ErrValidation {
		t.Errorf("error type = %s, want %s", cfgErr.Type, ErrValidation)
	}
}

func TestLoad_MissingClusterID(t *testing.T) {
	t.Setenv("SPOT_API_TOKEN", "spot_test_token")
	t.Setenv("SPOT_CLUSTER_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing SPOT_CLUSTER_ID")
	}
}

func TestLoad_InvalidProvider(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("FEATURE_FLAG_PROVIDER", "optimizely")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cfgErr.Type != ErrValidation {
		t.Errorf("error type = %s, want %s", cfgErr.Type, ErrValidation)
	}
}

func TestLoad_UnparseableDuration(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("SPOT_REQUEST_TIMEOUT", "ten seconds")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cfgErr.Type != ErrParsing {
		t.Errorf("error type = %s, want %s", cfgErr.Type, ErrParsing)
	}
}

func TestLoad_MinExceedsMax(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("CLUSTER_MIN_REPLICAS", "20")
	t.Setenv("CLUSTER_MAX_REPLICAS", "10")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when min replicas exceeds max")
	}
	if !strings.Contains(err.Error(), "CLUSTER_MIN_REPLICAS") {
		t.Errorf("error should name the offending variable: %v", err)
	}
}

func TestLoad_InvalidBusinessHours(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("BUSINESS_HOURS_START", "6am")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed HH:MM boundary")
	}
	if !strings.Contains(err.Error(), "HH:MM") {
		t.Errorf("error should mention the expected format: %v", err)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("BUSINESS_HOURS_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown IANA timezone")
	}
	if !strings.Contains(err.Error(), "BUSINESS_HOURS_TIMEZONE") {
		t.Errorf("error should name the offending variable: %v", err)
	}
}

func TestLoad_SecretsAreRedactedTypes(t *testing.T) {
	setRequiredTestEnv(t)
	t.Setenv("WEBHOOK_SECRET", "whsec_super_secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.Flag.WebhookSecret.String(); strings.Contains(got, "super_secret") {
		t.Errorf("secret leaked through String(): %q", got)
	}
	if got := cfg.Flag.WebhookSecret.Unmask(); got != "whsec_super_secret" {
		t.Errorf("Unmask() = %q, want the raw value", got)
	}
}

func TestConfigError_Formatting(t *testing.T) {
	underlying := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "bad value", Err: underlying}

	if !strings.Contains(err.Error(), string(ErrParsing)) {
		t.Errorf("Error() should include the error type: %q", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("ConfigError should unwrap to the underlying error")
	}

	bare := &ConfigError{Type: ErrValidation, Message: "no underlying"}
	if !strings.Contains(bare.Error(), "no underlying") {
		t.Errorf("Error() should include the message: %q", bare.Error())
	}
}
