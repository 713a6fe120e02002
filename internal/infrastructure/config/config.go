package config

import (
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"karte/internal/adapters/outbound/persistence/datastore"
	valueobjects "karte/internal/domain/value_objects"

	"github.com/caarlos0/env/v11"
)

const SDKVersion = "2.28.0"

const (
	ConnectivityModeDial      = "dial"
	ConnectivityModeInterface = "interface"
	ConnectivityModeStatic    = "static"
)

type ConfigError struct {
	Code     string
	Message  string
	Metadata map[string]string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

type Config struct {
	Port            string
	OpenAPISpecPath string
	ShutdownTimeout time.Duration

	AppKey        valueobjects.AppKey
	BaseURL       string
	OperationMode valueobjects.OperationMode
	DryRun        bool
	OptOutDefault bool

	DatabaseEngine           datastore.Engine
	DatabaseDSN              string
	DatabaseMaxOpenConns     int
	DBReadinessTimeout       time.Duration
	DBReadinessRetryInterval time.Duration

	DispatchDebounce    time.Duration
	DispatchChunkSize   int
	RequestTimeout      time.Duration
	RetryBaseInterval   time.Duration
	RetryMultiplier     float64
	RetryRandomization  float64
	RateLimitEnabled    bool
	RateLimitPerWindow  int
	RateLimitWindow     time.Duration
	BreakerThreshold    int
	BreakerRecoverAfter time.Duration

	ConnectivityMode     string
	ConnectivityInterval time.Duration
	ConnectivityDebounce int

	AppVersionName string
	AppVersionCode string
	AppPackageName string
	Language       string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
}

type rawEnv struct {
	Port                     string        `env:"KARTE_PORT" envDefault:"8080"`
	OpenAPISpecPath          string        `env:"KARTE_OPENAPI_SPEC_PATH"`
	ShutdownTimeout          time.Duration `env:"KARTE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AppKey                   string        `env:"KARTE_APP_KEY"`
	BaseURL                  string        `env:"KARTE_BASE_URL" envDefault:"https://b.karte.io/v0/native"`
	OperationMode            string        `env:"KARTE_OPERATION_MODE" envDefault:"DEFAULT"`
	DryRun                   bool          `env:"KARTE_DRY_RUN"`
	OptOutDefault            bool          `env:"KARTE_OPT_OUT_DEFAULT"`
	DatabaseEngine           string        `env:"KARTE_DB_ENGINE" envDefault:"sqlite"`
	DatabaseDSN              string        `env:"KARTE_DB_DSN" envDefault:"karte.db"`
	DatabaseMaxOpenConns     int           `env:"KARTE_DB_MAX_OPEN_CONNS" envDefault:"4"`
	DBReadinessTimeout       time.Duration `env:"KARTE_DB_READINESS_TIMEOUT" envDefault:"30s"`
	DBReadinessRetryInterval time.Duration `env:"KARTE_DB_READINESS_RETRY_INTERVAL" envDefault:"2s"`
	DispatchDebounce         time.Duration `env:"KARTE_DISPATCH_DEBOUNCE" envDefault:"500ms"`
	DispatchChunkSize        int           `env:"KARTE_DISPATCH_CHUNK_SIZE" envDefault:"10"`
	RequestTimeout           time.Duration `env:"KARTE_REQUEST_TIMEOUT" envDefault:"10s"`
	RetryBaseInterval        time.Duration `env:"KARTE_RETRY_BASE_INTERVAL" envDefault:"500ms"`
	RetryMultiplier          float64       `env:"KARTE_RETRY_MULTIPLIER" envDefault:"4"`
	RetryRandomization       float64       `env:"KARTE_RETRY_RANDOMIZATION_FACTOR" envDefault:"0.5"`
	RateLimitEnabled         bool          `env:"KARTE_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerWindow       int           `env:"KARTE_RATE_LIMIT" envDefault:"200"`
	RateLimitWindow          time.Duration `env:"KARTE_RATE_LIMIT_WINDOW" envDefault:"60s"`
	BreakerThreshold         int           `env:"KARTE_CIRCUIT_BREAKER_THRESHOLD" envDefault:"3"`
	BreakerRecoverAfter      time.Duration `env:"KARTE_CIRCUIT_BREAKER_RECOVER_AFTER" envDefault:"5m"`
	ConnectivityMode         string        `env:"KARTE_CONNECTIVITY_MODE" envDefault:"dial"`
	ConnectivityInterval     time.Duration `env:"KARTE_CONNECTIVITY_INTERVAL" envDefault:"5s"`
	ConnectivityDebounce     int           `env:"KARTE_CONNECTIVITY_DEBOUNCE" envDefault:"2"`
	AppVersionName           string        `env:"KARTE_APP_VERSION_NAME"`
	AppVersionCode           string        `env:"KARTE_APP_VERSION_CODE" envDefault:"1"`
	AppPackageName           string        `env:"KARTE_APP_PACKAGE_NAME" envDefault:"karte-agent"`
	Language                 string        `env:"KARTE_LANGUAGE" envDefault:"en-US"`
	OTelEnabled              bool          `env:"KARTE_OTEL_ENABLED"`
	OTelEndpoint             string        `env:"KARTE_OTEL_ENDPOINT"`
	OTelServiceName          string        `env:"KARTE_OTEL_SERVICE_NAME" envDefault:"karte"`
}

func LoadConfig() (Config, *ConfigError) {
	return LoadConfigFrom(Environ())
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	environment := make(map[string]string)
	for _, entry := range os.Environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		environment[name] = value
	}
	return environment
}

// LoadConfigFrom parses KARTE_* settings from environment instead of the
// process environment, so callers can layer flags or files on top.
func LoadConfigFrom(environment map[string]string) (Config, *ConfigError) {
	var raw rawEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environment}); err != nil {
		return Config{}, &ConfigError{
			Code:    "CONFIG_ENV_INVALID",
			Message: err.Error(),
		}
	}
	return raw.build()
}

func (c Config) Address() string {
	return ":" + c.Port
}

// TrackURL is the collection endpoint for the configured operation mode.
func (c Config) TrackURL() string {
	return c.BaseURL + c.OperationMode.EndpointPath()
}

// ProbeAddress is the host:port dialed by the connectivity probe.
func (c Config) ProbeAddress() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	if parsed.Port() != "" {
		return parsed.Host
	}
	port := "443"
	if parsed.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(parsed.Hostname(), port)
}

func (r rawEnv) build() (Config, *ConfigError) {
	if strings.TrimSpace(r.AppKey) == "" {
		return Config{}, &ConfigError{
			Code:    "CONFIG_APP_KEY_REQUIRED",
			Message: "KARTE_APP_KEY is required",
		}
	}
	appKey, appErr := valueobjects.NewAppKey(r.AppKey)
	if appErr != nil {
		return Config{}, &ConfigError{
			Code:    "CONFIG_APP_KEY_INVALID",
			Message: "KARTE_APP_KEY must be 32 characters",
		}
	}

	baseURL, appErr := valueobjects.NormalizeEndpointURL(r.BaseURL)
	if appErr != nil {
		return Config{}, &ConfigError{
			Code:    "CONFIG_BASE_URL_INVALID",
			Message: "KARTE_BASE_URL must be an absolute http(s) URL",
			Metadata: map[string]string{
				"value": r.BaseURL,
			},
		}
	}

	operationMode, appErr := valueobjects.ParseOperationMode(r.OperationMode)
	if appErr != nil {
		return Config{}, &ConfigError{
			Code:    "CONFIG_OPERATION_MODE_INVALID",
			Message: "KARTE_OPERATION_MODE must be DEFAULT or INGEST",
			Metadata: map[string]string{
				"value": r.OperationMode,
			},
		}
	}

	engine, cfgErr := parseEngine(r.DatabaseEngine)
	if cfgErr != nil {
		return Config{}, cfgErr
	}
	dsn := strings.TrimSpace(r.DatabaseDSN)
	if dsn == "" {
		return Config{}, &ConfigError{
			Code:    "CONFIG_DB_DSN_REQUIRED",
			Message: "KARTE_DB_DSN is required",
		}
	}

	connectivityMode := strings.ToLower(strings.TrimSpace(r.ConnectivityMode))
	switch connectivityMode {
	case ConnectivityModeDial, ConnectivityModeInterface, ConnectivityModeStatic:
	default:
		return Config{}, &ConfigError{
			Code:    "CONFIG_CONNECTIVITY_MODE_INVALID",
			Message: "KARTE_CONNECTIVITY_MODE must be dial, interface or static",
			Metadata: map[string]string{
				"value": r.ConnectivityMode,
			},
		}
	}

	durations := map[string]time.Duration{
		"KARTE_SHUTDOWN_TIMEOUT":              r.ShutdownTimeout,
		"KARTE_DISPATCH_DEBOUNCE":             r.DispatchDebounce,
		"KARTE_REQUEST_TIMEOUT":               r.RequestTimeout,
		"KARTE_RETRY_BASE_INTERVAL":           r.RetryBaseInterval,
		"KARTE_RATE_LIMIT_WINDOW":             r.RateLimitWindow,
		"KARTE_CIRCUIT_BREAKER_RECOVER_AFTER": r.BreakerRecoverAfter,
		"KARTE_CONNECTIVITY_INTERVAL":         r.ConnectivityInterval,
	}
	for name, value := range durations {
		if value <= 0 {
			return Config{}, &ConfigError{
				Code:    "CONFIG_DURATION_INVALID",
				Message: name + " must be positive",
				Metadata: map[string]string{
					"name":  name,
					"value": value.String(),
				},
			}
		}
	}

	counts := map[string]int{
		"KARTE_DISPATCH_CHUNK_SIZE":       r.DispatchChunkSize,
		"KARTE_RATE_LIMIT":                r.RateLimitPerWindow,
		"KARTE_CIRCUIT_BREAKER_THRESHOLD": r.BreakerThreshold,
		"KARTE_CONNECTIVITY_DEBOUNCE":     r.ConnectivityDebounce,
	}
	for name, value := range counts {
		if value <= 0 {
			return Config{}, &ConfigError{
				Code:    "CONFIG_COUNT_INVALID",
				Message: name + " must be positive",
				Metadata: map[string]string{
					"name": name,
				},
			}
		}
	}

	if r.RetryMultiplier < 1 {
		return Config{}, &ConfigError{
			Code:    "CONFIG_RETRY_MULTIPLIER_INVALID",
			Message: "KARTE_RETRY_MULTIPLIER must be at least 1",
		}
	}
	if r.RetryRandomization < 0 || r.RetryRandomization >= 1 {
		return Config{}, &ConfigError{
			Code:    "CONFIG_RETRY_RANDOMIZATION_INVALID",
			Message: "KARTE_RETRY_RANDOMIZATION_FACTOR must be in [0, 1)",
		}
	}

	otelEndpoint := strings.TrimSpace(r.OTelEndpoint)
	if r.OTelEnabled && otelEndpoint == "" {
		return Config{}, &ConfigError{
			Code:    "CONFIG_OTEL_ENDPOINT_REQUIRED",
			Message: "KARTE_OTEL_ENDPOINT is required when KARTE_OTEL_ENABLED is true",
		}
	}

	return Config{
		Port:                     r.Port,
		OpenAPISpecPath:          r.OpenAPISpecPath,
		ShutdownTimeout:          r.ShutdownTimeout,
		AppKey:                   appKey,
		BaseURL:                  baseURL,
		OperationMode:            operationMode,
		DryRun:                   r.DryRun,
		OptOutDefault:            r.OptOutDefault,
		DatabaseEngine:           engine,
		DatabaseDSN:              dsn,
		DatabaseMaxOpenConns:     r.DatabaseMaxOpenConns,
		DBReadinessTimeout:       r.DBReadinessTimeout,
		DBReadinessRetryInterval: r.DBReadinessRetryInterval,
		DispatchDebounce:         r.DispatchDebounce,
		DispatchChunkSize:        r.DispatchChunkSize,
		RequestTimeout:           r.RequestTimeout,
		RetryBaseInterval:        r.RetryBaseInterval,
		RetryMultiplier:          r.RetryMultiplier,
		RetryRandomization:       r.RetryRandomization,
		RateLimitEnabled:         r.RateLimitEnabled,
		RateLimitPerWindow:       r.RateLimitPerWindow,
		RateLimitWindow:          r.RateLimitWindow,
		BreakerThreshold:         r.BreakerThreshold,
		BreakerRecoverAfter:      r.BreakerRecoverAfter,
		ConnectivityMode:         connectivityMode,
		ConnectivityInterval:     r.ConnectivityInterval,
		ConnectivityDebounce:     r.ConnectivityDebounce,
		AppVersionName:           strings.TrimSpace(r.AppVersionName),
		AppVersionCode:           strings.TrimSpace(r.AppVersionCode),
		AppPackageName:           strings.TrimSpace(r.AppPackageName),
		Language:                 strings.TrimSpace(r.Language),
		OTelEnabled:              r.OTelEnabled,
		OTelEndpoint:             otelEndpoint,
		OTelServiceName:          r.OTelServiceName,
	}, nil
}

func parseEngine(raw string) (datastore.Engine, *ConfigError) {
	switch datastore.Engine(strings.ToLower(strings.TrimSpace(raw))) {
	case datastore.EngineSQLite, "":
		return datastore.EngineSQLite, nil
	case datastore.EnginePostgres, "postgresql":
		return datastore.EnginePostgres, nil
	default:
		return "", &ConfigError{
			Code:    "CONFIG_DB_ENGINE_INVALID",
			Message: "KARTE_DB_ENGINE must be sqlite or postgres",
			Metadata: map[string]string{
				"value": raw,
			},
		}
	}
}
