package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the fields a command mode depends on. Problems are
// collected so one run surfaces every missing key, not just the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	add := func(p string) {
		problems = append(problems, p)
	}

	switch mode {
	case "enrich":
		if c.Directory.APIKey == "" {
			add("directory.api_key is required")
		}
		c.requireState(add)
		c.requireStore(add)
	case "acquire":
		if c.Directory.APIKey == "" {
			add("directory.api_key is required")
		}
		c.requireState(add)
		c.requireStore(add)
		if c.Acquire.Workers < 1 || c.Acquire.Workers > 8 {
			add("acquire.workers must be between 1 and 8")
		}
	case "import":
		c.requireState(add)
		c.requireStore(add)
	case "status":
		c.requireState(add)
	case "serve":
		c.requireState(add)
		c.requireStore(add)
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Directory.RequestsPerSec <= 0 {
		add("directory.requests_per_sec must be > 0")
	}
	if c.Enrich.MinConfidence < 0 || c.Enrich.MinConfidence > 100 {
		add("enrich.min_confidence must be between 0 and 100")
	}
	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		add("monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) requireState(add func(string)) {
	if c.State.Dir == "" {
		add("state.dir is required")
	}
}

func (c *Config) requireStore(add func(string)) {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}
}
