package config

import (
	"fmt"
	"time"
)

// Config is the full client configuration.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Credential CredentialConfig `yaml:"credential"`
	Log        LogConfig        `yaml:"log"`
}

// APIConfig tunes the HTTP client.
type APIConfig struct {
	BaseURL               string `yaml:"base_url"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	RefreshTimeoutSeconds int    `yaml:"refresh_timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RefreshTimeout returns the credential refresh timeout as a duration.
func (c APIConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

// CredentialConfig selects and tunes the credential store driver.
type CredentialConfig struct {
	Driver     string      `yaml:"driver"`
	Slot       string      `yaml:"slot"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig tunes the redis credential driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:               "http://localhost:5000/api",
			TimeoutSeconds:        30,
			RefreshTimeoutSeconds: 10,
		},
		Credential: CredentialConfig{
			Driver: "sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.Credential.Driver {
	case "", "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown credential driver %q", c.Credential.Driver)
	}
	if c.Credential.Driver == "redis" && c.Credential.Redis.Addr == "" {
		return fmt.Errorf("credential.redis.addr is required for the redis driver")
	}
	return nil
}
