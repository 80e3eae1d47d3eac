package config

import (
	"encoding/json"
	"fmt"
	"os"

	"hydra/internal/constants"
	"hydra/internal/models"
	"hydra/internal/security"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

var ErrMissingDBPath = models.ConfigError{Message: "missing database path"}

var validate = validator.New()

// envOverrides are environment variables that take precedence over the
// config file. Useful for container deployments.
type envOverrides struct {
	Port         int    `env:"HYDRA_PORT"`
	DatabasePath string `env:"HYDRA_DB_PATH"`
	LogLevel     string `env:"HYDRA_LOG_LEVEL"`
	OTLPEndpoint string `env:"HYDRA_OTLP_ENDPOINT"`
}

// Load reads, validates, and defaults a daemon configuration.
func Load(path string) (*models.Config, error) {
	if err := security.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg models.Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvironmentOverrides(cfg *models.Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if overrides.Port != 0 {
		cfg.Server.Port = overrides.Port
	}
	if overrides.DatabasePath != "" {
		cfg.Database.Path = overrides.DatabasePath
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.OTLPEndpoint != "" {
		cfg.Tracing.OTLPEndpoint = overrides.OTLPEndpoint
	}

	return nil
}

func validateConfig(cfg *models.Config) error {
	if cfg.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidatePath(cfg.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}

	if err := validate.Struct(cfg); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	// Cross-field rule the struct tags can't express.
	if cfg.Ingress.MaxLimit != 0 && cfg.Ingress.DefaultLimit > cfg.Ingress.MaxLimit {
		return models.ConfigError{Message: "ingress default limit exceeds max limit"}
	}

	return nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = constants.DefaultServerPort
	}
	if cfg.Server.ReadTimeoutSec == 0 {
		cfg.Server.ReadTimeoutSec = constants.DefaultReadTimeoutSec
	}
	if cfg.Server.WriteTimeoutSec == 0 {
		cfg.Server.WriteTimeoutSec = constants.DefaultWriteTimeoutSec
	}
	if cfg.Server.IdleTimeoutSec == 0 {
		cfg.Server.IdleTimeoutSec = constants.DefaultIdleTimeoutSec
	}
	if cfg.Server.RateLimitRequests == 0 {
		cfg.Server.RateLimitRequests = constants.DefaultRateLimitRequests
	}
	if cfg.Server.RateLimitWindowSec == 0 {
		cfg.Server.RateLimitWindowSec = constants.DefaultRateLimitWindowSec
	}

	if cfg.Ingress.MaxBodyBytes == 0 {
		cfg.Ingress.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if cfg.Ingress.DefaultLimit == 0 {
		cfg.Ingress.DefaultLimit = constants.DefaultFetchLimit
	}
	if cfg.Ingress.MaxLimit == 0 {
		cfg.Ingress.MaxLimit = constants.MaxFetchLimit
	}

	if cfg.Retry.InitialBackoffMs == 0 {
		cfg.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "hydra"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 0.1
	}
}
