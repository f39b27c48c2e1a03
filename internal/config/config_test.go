package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://places.googleapis.com/v1", cfg.Directory.BaseURL)
	assert.InDelta(t, 10.0, cfg.Directory.RequestsPerSec, 0.001)
	assert.Equal(t, 4, cfg.Directory.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "placesync.db", cfg.Store.DatabaseURL)
	assert.Equal(t, ".placesync", cfg.State.Dir)
	assert.Equal(t, 10, cfg.State.SaveInterval)
	assert.Equal(t, 60, cfg.Enrich.MinConfidence)
	assert.Equal(t, 0, cfg.Enrich.RefreshAfterHrs)
	assert.Equal(t, 15, cfg.Enrich.CacheTTLMinutes)
	assert.InDelta(t, 500.0, cfg.Enrich.BiasRadiusMeters, 0.001)
	assert.Equal(t, 10, cfg.Enrich.MaxResults)
	assert.Equal(t, 4, cfg.Acquire.Workers)
	assert.Equal(t, 1000, cfg.Acquire.DelayMs)
	assert.Equal(t, 300, cfg.Acquire.JitterMs)
	assert.InDelta(t, 0.032, cfg.Pricing.SearchPerCall, 0.0001)
	assert.InDelta(t, 0.017, cfg.Pricing.DetailsPerCall, 0.0001)
	assert.InDelta(t, 0.007, cfg.Pricing.PhotoPerCall, 0.0001)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Regions)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
directory:
  api_key: test-key
  requests_per_sec: 2
store:
  driver: postgres
  database_url: postgres://localhost/places
log:
  level: debug
  format: console
regions:
  east:
    sw: {lat: 18.20, lng: -65.95}
    ne: {lat: 18.45, lng: -65.60}
  west:
    sw: {lat: 18.15, lng: -67.30}
    ne: {lat: 18.40, lng: -67.05}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Directory.APIKey)
	assert.InDelta(t, 2.0, cfg.Directory.RequestsPerSec, 0.001)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/places", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	require.Len(t, cfg.Regions, 2)
	east := cfg.Regions["east"]
	assert.InDelta(t, 18.20, east.SW.Lat, 0.001)
	assert.InDelta(t, -65.60, east.NE.Lng, 0.001)

	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.State.SaveInterval)
	assert.Equal(t, 4, cfg.Acquire.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PLACESYNC_STORE_DRIVER", "postgres")
	t.Setenv("PLACESYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("PLACESYNC_SERVER_PORT", "3000")
	t.Setenv("PLACESYNC_DIRECTORY_API_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Directory.APIKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Directory.APIKey = "test-key"
	cfg.Directory.RequestsPerSec = 10
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "placesync.db"
	cfg.State.Dir = ".placesync"
	cfg.Enrich.MinConfidence = 60
	cfg.Acquire.Workers = 4
	cfg.Monitoring.FailureRateThreshold = 0.25
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	cfg := validDefaults()

	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Directory.APIKey = ""
	cfg.State.Dir = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory.api_key is required")
	assert.Contains(t, err.Error(), "state.dir is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateAcquire_WorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Acquire.Workers = 0
	err := cfg.Validate("acquire")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire.workers must be between 1 and 8")

	cfg.Acquire.Workers = 9
	err = cfg.Validate("acquire")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire.workers must be between 1 and 8")

	cfg.Acquire.Workers = 8
	assert.NoError(t, cfg.Validate("acquire"))
}

func TestValidateAcquire_RequiresAPIKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Directory.APIKey = ""

	err := cfg.Validate("acquire")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory.api_key is required")
}

func TestValidateImport_RequiresStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Directory.RequestsPerSec = 0
	err := cfg.Validate("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests_per_sec must be > 0")

	cfg.Directory.RequestsPerSec = 10
	cfg.Enrich.MinConfidence = 101
	err = cfg.Validate("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_confidence must be between 0 and 100")

	cfg.Enrich.MinConfidence = 60
	cfg.Monitoring.FailureRateThreshold = 1.5
	err = cfg.Validate("status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_rate_threshold must be between 0 and 1")
}
