package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/core/client"
)

// Config represents the complete application configuration. Values come
// from three layers: built-in defaults, an optional YAML file, and
// SELLERDESK_* environment variables.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// MarketplaceConfig describes the remote marketplace API and the rate and
// retry policy applied to it. Ceilings and header names are configuration
// because they differ between marketplaces and account tiers.
type MarketplaceConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Account   string `mapstructure:"account"`
	UserAgent string `mapstructure:"user_agent"`

	// TokenEnv names the environment variable holding the access token.
	// The token itself never lives in a config file.
	TokenEnv string `mapstructure:"token_env"`

	PerSecond int `mapstructure:"per_second"`
	PerDay    int `mapstructure:"per_day"`

	Headers client.HeaderConfig `mapstructure:"headers"`
	Retry   RetryConfig         `mapstructure:"retry"`
}

// RetryConfig contains the backoff policy knobs.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Factor         float64       `mapstructure:"factor"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Token resolves the marketplace access token from the configured
// environment variable.
func (m MarketplaceConfig) Token() string {
	name := strings.TrimSpace(m.TokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

// ClientConfig translates marketplace settings into the client's policy.
func (m MarketplaceConfig) ClientConfig() client.Config {
	backoff := client.DefaultBackoff()
	if m.Retry.MaxRetries > 0 {
		backoff.MaxRetries = m.Retry.MaxRetries
	}
	if m.Retry.InitialDelay > 0 {
		backoff.Initial = m.Retry.InitialDelay
	}
	if m.Retry.MaxDelay > 0 {
		backoff.Max = m.Retry.MaxDelay
	}
	if m.Retry.Factor >= 1 {
		backoff.Factor = m.Retry.Factor
	}

	headers := m.Headers
	if headers.RetryAfter == "" && headers.Reset == "" {
		headers = client.DefaultHeaders()
	}

	return client.Config{
		Account:        m.Account,
		PerSecond:      m.PerSecond,
		PerDay:         m.PerDay,
		Backoff:        backoff,
		Headers:        headers,
		AttemptTimeout: m.Retry.AttemptTimeout,
	}
}

// Validate rejects configurations the client cannot safely run with.
// The marketplace base URL is checked separately by ValidateMarketplace so
// store-only commands work without one.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Marketplace.PerSecond < 1 {
		return fmt.Errorf("marketplace.per_second must be >= 1, got %d", c.Marketplace.PerSecond)
	}
	if c.Marketplace.PerDay < c.Marketplace.PerSecond {
		return fmt.Errorf("marketplace.per_day (%d) must be >= marketplace.per_second (%d)",
			c.Marketplace.PerDay, c.Marketplace.PerSecond)
	}
	if c.Marketplace.Retry.Factor != 0 && c.Marketplace.Retry.Factor < 1 {
		return fmt.Errorf("marketplace.retry.factor must be >= 1, got %v", c.Marketplace.Retry.Factor)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	return nil
}

// ValidateMarketplace checks the settings needed to actually dispatch calls.
func (c *Config) ValidateMarketplace() error {
	if strings.TrimSpace(c.Marketplace.BaseURL) == "" {
		return errors.New("marketplace.base_url is required")
	}
	return nil
}
