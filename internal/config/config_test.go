package config

import (
	"os"
	"path/filepath"
	"testing"

	"hydra/internal/constants"
	"hydra/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"server": {"port": 9000},
		"database": {"path": "/data/hydra.db"},
		"ingress": {"defaultLimit": 20, "maxLimit": 50},
		"logLevel": "debug"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data/hydra.db", cfg.Database.Path)
	assert.Equal(t, 20, cfg.Ingress.DefaultLimit)
	assert.Equal(t, 50, cfg.Ingress.MaxLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{"database": {"path": "/data/hydra.db"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultReadTimeoutSec, cfg.Server.ReadTimeoutSec)
	assert.Equal(t, constants.DefaultRateLimitRequests, cfg.Server.RateLimitRequests)
	assert.Equal(t, int64(constants.DefaultMaxBodyBytes), cfg.Ingress.MaxBodyBytes)
	assert.Equal(t, constants.DefaultFetchLimit, cfg.Ingress.DefaultLimit)
	assert.Equal(t, constants.MaxFetchLimit, cfg.Ingress.MaxLimit)
	assert.Equal(t, constants.DefaultRetryBackoffMs, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, "hydra", cfg.Tracing.ServiceName)
	assert.InDelta(t, 0.1, cfg.Tracing.SampleRate, 0.0001)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfigFile(t, `{"server": {"port": 9000}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorAs(t, err, &models.ConfigError{})
}

func TestLoad_RejectsInvalidLogLevel(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"path": "/data/hydra.db"},
		"logLevel": "loud"
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	path := writeConfigFile(t, `{
		"server": {"port": 70000},
		"database": {"path": "/data/hydra.db"}
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsDefaultLimitAboveMax(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"path": "/data/hydra.db"},
		"ingress": {"defaultLimit": 100, "maxLimit": 10}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default limit exceeds max limit")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("HYDRA_PORT", "9999")
	t.Setenv("HYDRA_DB_PATH", "/override/hydra.db")
	t.Setenv("HYDRA_LOG_LEVEL", "warn")
	t.Setenv("HYDRA_OTLP_ENDPOINT", "collector:4318")

	path := writeConfigFile(t, `{
		"server": {"port": 9000},
		"database": {"path": "/data/hydra.db"},
		"logLevel": "info"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/override/hydra.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
}

func TestLoad_RejectsTraversalInConfigPath(t *testing.T) {
	_, err := Load("../../../etc/passwd")
	assert.Error(t, err)
}
