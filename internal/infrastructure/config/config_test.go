//go:build !integration

package config

import (
	"testing"
	"time"

	"karte/internal/adapters/outbound/persistence/datastore"
	valueobjects "karte/internal/domain/value_objects"
)

const testAppKey = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)

	cfg, cfgErr := LoadConfig()
	if cfgErr != nil {
		t.Fatalf("expected no error, got %v", cfgErr)
	}

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.OpenAPISpecPath != "" {
		t.Fatalf("expected embedded openapi document by default, got %s", cfg.OpenAPISpecPath)
	}
	if cfg.TrackURL() != "https://b.karte.io/v0/native/track" {
		t.Fatalf("expected default track url, got %s", cfg.TrackURL())
	}
	if cfg.DatabaseEngine != datastore.EngineSQLite {
		t.Fatalf("expected sqlite engine, got %s", cfg.DatabaseEngine)
	}
	if cfg.DispatchDebounce != 500*time.Millisecond {
		t.Fatalf("expected 500ms debounce, got %s", cfg.DispatchDebounce)
	}
	if cfg.DispatchChunkSize != 10 {
		t.Fatalf("expected chunk size 10, got %d", cfg.DispatchChunkSize)
	}
	if !cfg.RateLimitEnabled || cfg.RateLimitPerWindow != 200 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults enabled=%t limit=%d window=%s", cfg.RateLimitEnabled, cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	}
	if cfg.BreakerThreshold != 3 || cfg.BreakerRecoverAfter != 300000*time.Millisecond {
		t.Fatalf("unexpected breaker defaults threshold=%d recover_after=%s", cfg.BreakerThreshold, cfg.BreakerRecoverAfter)
	}
	if cfg.ProbeAddress() != "b.karte.io:443" {
		t.Fatalf("expected probe address b.karte.io:443, got %s", cfg.ProbeAddress())
	}
}

func TestLoadConfigRequiresAppKey(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", "")

	_, cfgErr := LoadConfig()
	if cfgErr == nil {
		t.Fatalf("expected error")
	}
	if cfgErr.Code != "CONFIG_APP_KEY_REQUIRED" {
		t.Fatalf("expected CONFIG_APP_KEY_REQUIRED, got %s", cfgErr.Code)
	}
}

func TestLoadConfigRejectsShortAppKey(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", "short")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_APP_KEY_INVALID" {
		t.Fatalf("expected CONFIG_APP_KEY_INVALID, got %v", cfgErr)
	}
}

func TestLoadConfigIngestModeAndBaseURL(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_BASE_URL", "http://Collector.Local:9000/v0/native/?debug=1")
	t.Setenv("KARTE_OPERATION_MODE", "ingest")

	cfg, cfgErr := LoadConfig()
	if cfgErr != nil {
		t.Fatalf("expected no error, got %v", cfgErr)
	}
	if cfg.OperationMode != valueobjects.OperationModeIngest {
		t.Fatalf("expected INGEST, got %s", cfg.OperationMode)
	}
	if cfg.TrackURL() != "http://collector.local:9000/v0/native/ingest" {
		t.Fatalf("unexpected track url %s", cfg.TrackURL())
	}
	if cfg.ProbeAddress() != "collector.local:9000" {
		t.Fatalf("unexpected probe address %s", cfg.ProbeAddress())
	}
}

func TestLoadConfigRejectsInvalidOperationMode(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_OPERATION_MODE", "batch")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_OPERATION_MODE_INVALID" {
		t.Fatalf("expected CONFIG_OPERATION_MODE_INVALID, got %v", cfgErr)
	}
}

func TestLoadConfigRejectsInvalidEngine(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_DB_ENGINE", "mysql")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_DB_ENGINE_INVALID" {
		t.Fatalf("expected CONFIG_DB_ENGINE_INVALID, got %v", cfgErr)
	}
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_DISPATCH_DEBOUNCE", "soon")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_ENV_INVALID" {
		t.Fatalf("expected CONFIG_ENV_INVALID, got %v", cfgErr)
	}
}

func TestLoadConfigRejectsNonPositiveChunkSize(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_DISPATCH_CHUNK_SIZE", "0")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_COUNT_INVALID" {
		t.Fatalf("expected CONFIG_COUNT_INVALID, got %v", cfgErr)
	}
	if cfgErr.Metadata["name"] != "KARTE_DISPATCH_CHUNK_SIZE" {
		t.Fatalf("expected offending name in metadata, got %v", cfgErr.Metadata)
	}
}

func TestLoadConfigRequiresOTelEndpointWhenEnabled(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", testAppKey)
	t.Setenv("KARTE_OTEL_ENABLED", "true")
	t.Setenv("KARTE_OTEL_ENDPOINT", "")

	_, cfgErr := LoadConfig()
	if cfgErr == nil || cfgErr.Code != "CONFIG_OTEL_ENDPOINT_REQUIRED" {
		t.Fatalf("expected CONFIG_OTEL_ENDPOINT_REQUIRED, got %v", cfgErr)
	}
}

func TestLoadConfigFromRejectsInvalidConnectivityMode(t *testing.T) {
	_, cfgErr := LoadConfigFrom(map[string]string{
		"KARTE_APP_KEY":           testAppKey,
		"KARTE_CONNECTIVITY_MODE": "carrier-pigeon",
	})
	if cfgErr == nil || cfgErr.Code != "CONFIG_CONNECTIVITY_MODE_INVALID" {
		t.Fatalf("expected CONFIG_CONNECTIVITY_MODE_INVALID, got %v", cfgErr)
	}
}

func TestLoadConfigFromExplicitEnvironment(t *testing.T) {
	t.Setenv("KARTE_APP_KEY", "")

	cfg, cfgErr := LoadConfigFrom(map[string]string{
		"KARTE_APP_KEY":  testAppKey,
		"KARTE_PORT":     "9090",
		"KARTE_DB_DSN":   "/tmp/other.db",
		"UNRELATED_NAME": "ignored",
	})
	if cfgErr != nil {
		t.Fatalf("expected no error, got %v", cfgErr)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port from explicit environment, got %s", cfg.Port)
	}
	if cfg.DatabaseDSN != "/tmp/other.db" {
		t.Fatalf("expected dsn from explicit environment, got %s", cfg.DatabaseDSN)
	}
	if cfg.DispatchChunkSize != 10 {
		t.Fatalf("expected defaults to apply, got chunk size %d", cfg.DispatchChunkSize)
	}
}
