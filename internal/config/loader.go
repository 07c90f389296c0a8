// Package config provides centralized configuration management for
// sellerdesk: built-in defaults, an optional YAML file, and SELLERDESK_*
// environment variable overrides, decoded into a typed Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "SELLERDESK"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Load builds the configuration. cfgFile may be empty, in which case the
// default locations are searched ($XDG_CONFIG_HOME/sellerdesk, then the
// working directory); a missing file is not an error, the defaults and
// environment carry the day.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if strings.TrimSpace(cfgFile) != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// An explicit --config path that does not exist is an error;
			// absence of the default file is not.
			if strings.TrimSpace(cfgFile) != "" {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")

	v.SetDefault("marketplace.base_url", "")
	v.SetDefault("marketplace.account", "default")
	v.SetDefault("marketplace.user_agent", "sellerdesk")
	v.SetDefault("marketplace.token_env", "SELLERDESK_MARKETPLACE_TOKEN")
	v.SetDefault("marketplace.per_second", 5)
	v.SetDefault("marketplace.per_day", 5000)
	v.SetDefault("marketplace.headers.retry_after", "Retry-After")
	v.SetDefault("marketplace.headers.reset", "X-RateLimit-Reset")
	v.SetDefault("marketplace.retry.max_retries", 5)
	v.SetDefault("marketplace.retry.initial_delay", "500ms")
	v.SetDefault("marketplace.retry.max_delay", "30s")
	v.SetDefault("marketplace.retry.factor", 2.0)
	v.SetDefault("marketplace.retry.attempt_timeout", "30s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sellerdesk")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "sellerdesk")
}

// DefaultStorePath returns the default path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./sellerdesk.db"
	}
	return filepath.Join(dataDir, "sellerdesk.db")
}
