package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sellerdesk/sellerdesk/internal/config"
	errwrap "github.com/sellerdesk/sellerdesk/internal/errors"
	"github.com/sellerdesk/sellerdesk/internal/observability"
	"github.com/sellerdesk/sellerdesk/internal/server"
	"github.com/sellerdesk/sellerdesk/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

On shutdown the marketplace client is closed first so queued calls fail
fast, then the HTTP server drains and logs are flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg == nil {
			return errwrap.NewConfigInvalidError("configuration not loaded")
		}

		observability.InitServerLogger(binaryName, cfg.Logging.Level)

		host := serverHost
		port := serverPort
		if !cmd.Flags().Changed("host") && cfg.Server.Host != "" {
			host = cfg.Server.Host
		}
		if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
			port = cfg.Server.Port
		}

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		if err := observability.InitMetrics(binaryName, metricsPort); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", binaryName),
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.Int("metrics_port", metricsPort))

		db, err := openStore(cmd.Context())
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "store initialization failed")
		}

		mc, err := buildClient(cfg, db, observability.ServerLogger)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "marketplace client initialization failed")
		}

		// Initialize health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
			return db.Ping(ctx)
		}))

		srv := server.New(host, port, mc)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: close the client first so queued
		// calls fail fast, then drain HTTP, then flush logs.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			if err := db.Close(); err != nil {
				observability.ServerLogger.Warn("Store close returned error",
					zap.Error(err))
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing marketplace client...")
			mc.Close()
			return nil
		})

		// Config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if _, err := config.Load(cfgFile); err != nil {
				observability.ServerLogger.Error("Failed to reload configuration",
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully")

			// Rate ceilings and retry policy still require a restart; the
			// running client keeps its original budget.
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", host),
				zap.Int("port", port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
