package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the loader looks for a config file when no path is
// supplied.
const DefaultPath = "config.yaml"

// Loader assembles configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader with the default file path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      DefaultPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path. Path is
// empty when no file was found and defaults were used.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration. A missing file is not an error;
// a malformed one is.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// A missing .env just means the process environment is used as is.
		_ = godotenv.Load()
	}

	cfg := Default()
	origin := ""

	raw, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
		origin = l.path
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Result{Config: cfg, Path: origin}, nil
}

// applyEnv lets deployment environments override file values.
func applyEnv(cfg *Config) {
	setString(&cfg.API.BaseURL, "PRICEPULSE_API_BASE_URL")
	setInt(&cfg.API.TimeoutSeconds, "PRICEPULSE_API_TIMEOUT_SECONDS")
	setInt(&cfg.API.RefreshTimeoutSeconds, "PRICEPULSE_API_REFRESH_TIMEOUT_SECONDS")

	setString(&cfg.Credential.Driver, "PRICEPULSE_CREDENTIAL_DRIVER")
	setString(&cfg.Credential.Slot, "PRICEPULSE_CREDENTIAL_SLOT")
	setString(&cfg.Credential.SQLitePath, "PRICEPULSE_CREDENTIAL_SQLITE_PATH")
	setString(&cfg.Credential.Redis.Addr, "PRICEPULSE_REDIS_ADDR")
	setString(&cfg.Credential.Redis.Password, "PRICEPULSE_REDIS_PASSWORD")
	setInt(&cfg.Credential.Redis.DB, "PRICEPULSE_REDIS_DB")
	setString(&cfg.Credential.Redis.Prefix, "PRICEPULSE_REDIS_PREFIX")

	setString(&cfg.Log.Level, "PRICEPULSE_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}
