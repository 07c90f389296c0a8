package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5, cfg.Marketplace.PerSecond)
	require.Equal(t, 5000, cfg.Marketplace.PerDay)
	require.Equal(t, "Retry-After", cfg.Marketplace.Headers.RetryAfter)
	require.Equal(t, "X-RateLimit-Reset", cfg.Marketplace.Headers.Reset)
	require.Equal(t, 5, cfg.Marketplace.Retry.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.Marketplace.Retry.InitialDelay)
	require.Equal(t, 30*time.Second, cfg.Marketplace.Retry.MaxDelay)
	require.NotEmpty(t, cfg.Store.Path)
}

func TestValidateMarketplaceRequiresBaseURL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateMarketplace()
	require.Error(t, err)
	require.Contains(t, err.Error(), "marketplace.base_url")

	cfg.Marketplace.BaseURL = "https://api.marketplace.test"
	require.NoError(t, cfg.ValidateMarketplace())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
server:
  port: 9999
marketplace:
  base_url: https://api.marketplace.test
  account: eu-main
  per_second: 3
  per_day: 1200
  headers:
    retry_after: X-Throttle-Wait
  retry:
    max_retries: 4
    initial_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "eu-main", cfg.Marketplace.Account)
	require.Equal(t, 3, cfg.Marketplace.PerSecond)
	require.Equal(t, 1200, cfg.Marketplace.PerDay)
	require.Equal(t, "X-Throttle-Wait", cfg.Marketplace.Headers.RetryAfter)
	require.Equal(t, 4, cfg.Marketplace.Retry.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.Marketplace.Retry.InitialDelay)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SELLERDESK_MARKETPLACE_BASE_URL", "https://api.marketplace.test")
	t.Setenv("SELLERDESK_SERVER_PORT", "7070")
	t.Setenv("SELLERDESK_MARKETPLACE_PER_SECOND", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2, cfg.Marketplace.PerSecond)
}

func TestLoadRejectsInvalidCeilings(t *testing.T) {
	t.Setenv("SELLERDESK_MARKETPLACE_BASE_URL", "https://api.marketplace.test")
	t.Setenv("SELLERDESK_MARKETPLACE_PER_DAY", "1")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "per_day")
}

func TestMarketplaceClientConfig(t *testing.T) {
	m := MarketplaceConfig{
		Account:   "eu-main",
		PerSecond: 5,
		PerDay:    5000,
		Retry: RetryConfig{
			MaxRetries:     4,
			InitialDelay:   100 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Factor:         3,
			AttemptTimeout: 15 * time.Second,
		},
	}

	cc := m.ClientConfig()
	require.Equal(t, "eu-main", cc.Account)
	require.Equal(t, 4, cc.Backoff.MaxRetries)
	require.Equal(t, 100*time.Millisecond, cc.Backoff.Initial)
	require.Equal(t, 10*time.Second, cc.Backoff.Max)
	require.Equal(t, 3.0, cc.Backoff.Factor)
	require.Equal(t, 15*time.Second, cc.AttemptTimeout)

	// Unset header names fall back to the common convention.
	require.Equal(t, "Retry-After", cc.Headers.RetryAfter)
}

func TestMarketplaceToken(t *testing.T) {
	t.Setenv("SELLERDESK_TEST_TOKEN", " tok-42 ")

	m := MarketplaceConfig{TokenEnv: "SELLERDESK_TEST_TOKEN"}
	require.Equal(t, "tok-42", m.Token())

	require.Empty(t, MarketplaceConfig{}.Token())
}
