package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/core/client"
	"github.com/sellerdesk/sellerdesk/internal/core/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// buildClient assembles the rate-limited marketplace client from config.
// The store may be nil, in which case the day window is not persisted.
func buildClient(cfg *config.Config, db *store.Store, logger *logging.Logger) (*client.Client, error) {
	if err := cfg.ValidateMarketplace(); err != nil {
		return nil, err
	}

	exec := &client.HTTPExecutor{
		BaseURL:   cfg.Marketplace.BaseURL,
		UserAgent: cfg.Marketplace.UserAgent,
	}
	if token := cfg.Marketplace.Token(); token != "" {
		exec.Tokens = client.StaticToken(token)
	}

	opts := client.Options{Logger: logger}
	if db != nil {
		opts.Store = db
	}

	return client.New(cfg.Marketplace.ClientConfig(), exec, opts), nil
}
