package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/islandways/placesync/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Directory  DirectoryConfig         `yaml:"directory" mapstructure:"directory"`
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	State      StateConfig             `yaml:"state" mapstructure:"state"`
	Enrich     EnrichConfig            `yaml:"enrich" mapstructure:"enrich"`
	Acquire    AcquireConfig           `yaml:"acquire" mapstructure:"acquire"`
	Regions    map[string]RegionConfig `yaml:"regions" mapstructure:"regions"`
	Pricing    cost.Rates              `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
}

// DirectoryConfig configures the place-directory API client.
type DirectoryConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig configures the knowledge-store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StateConfig configures run checkpointing.
type StateConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	SaveInterval int    `yaml:"save_interval" mapstructure:"save_interval"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	MinConfidence    int     `yaml:"min_confidence" mapstructure:"min_confidence"`
	RefreshAfterHrs  int     `yaml:"refresh_after_hours" mapstructure:"refresh_after_hours"`
	CacheTTLMinutes  int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	BiasRadiusMeters float64 `yaml:"bias_radius_meters" mapstructure:"bias_radius_meters"`
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"`
}

// AcquireConfig configures the session worker pool.
type AcquireConfig struct {
	Workers  int `yaml:"workers" mapstructure:"workers"`
	DelayMs  int `yaml:"delay_ms" mapstructure:"delay_ms"`
	JitterMs int `yaml:"jitter_ms" mapstructure:"jitter_ms"`
}

// RegionConfig is a named bounding box places are curated under.
type RegionConfig struct {
	SW BoundsCorner `yaml:"sw" mapstructure:"sw"`
	NE BoundsCorner `yaml:"ne" mapstructure:"ne"`
}

// BoundsCorner is one corner of a region bounding box.
type BoundsCorner struct {
	Lat float64 `yaml:"lat" mapstructure:"lat"`
	Lng float64 `yaml:"lng" mapstructure:"lng"`
}

// MonitoringConfig configures background health checks and alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the progress-monitor API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty-string entries register keys that usually arrive
	// through the environment; viper only resolves env vars for keys it
	// knows about.
	v.SetDefault("directory.api_key", "")
	v.SetDefault("directory.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("directory.requests_per_sec", 10.0)
	v.SetDefault("directory.max_retries", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "placesync.db")
	v.SetDefault("state.dir", ".placesync")
	v.SetDefault("state.save_interval", 10)
	v.SetDefault("enrich.min_confidence", 60)
	v.SetDefault("enrich.refresh_after_hours", 0)
	v.SetDefault("enrich.cache_ttl_minutes", 15)
	v.SetDefault("enrich.bias_radius_meters", 500.0)
	v.SetDefault("enrich.max_results", 10)
	v.SetDefault("acquire.workers", 4)
	v.SetDefault("acquire.delay_ms", 1000)
	v.SetDefault("acquire.jitter_ms", 300)
	v.SetDefault("pricing.search_per_call", 0.032)
	v.SetDefault("pricing.details_per_call", 0.017)
	v.SetDefault("pricing.photo_per_call", 0.007)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
