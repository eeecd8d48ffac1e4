package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/api"
	"github.com/shareguard/shareguard/pkg/health"
	"github.com/shareguard/shareguard/pkg/metrics"
	"github.com/shareguard/shareguard/pkg/monitor"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ShareGuard server",
	Long: `Start the ShareGuard server with the specified configuration.

The server exposes the REST API and notification WebSocket, and runs the
permission monitor loop for the configured watch paths.

Examples:
  # Start with default config location
  shareguard start

  # Start with custom config file
  shareguard start --config /etc/shareguard/config.yaml

  # Start with environment variable overrides
  SHAREGUARD_LOGGING_LEVEL=DEBUG shareguard start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource())

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", logger.Err(err))
		}
	}()
	logger.Info("Store initialized", "type", cfg.Database.Type)

	sc, err := buildScanner(cfg)
	if err != nil {
		return err
	}
	logger.Info("Scanner initialized",
		"directory", cfg.Directory.Type,
		"excluded_prefixes", len(cfg.Scanner.ExcludedPaths))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	ns := notify.NewService(notify.Config{
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: cfg.Notify.SendTimeout,
	})
	defer func() {
		if err := ns.Stop(context.Background()); err != nil {
			logger.Error("notify shutdown error", logger.Err(err))
		}
	}()

	analyzer := health.New(st, sc, health.Config{
		MaxACECount:       cfg.Health.MaxACECount,
		MaxDirectUserACEs: cfg.Health.MaxDirectUserACEs,
		CriticalGroups:    cfg.Health.CriticalGroups,
		CacheTTL:          cfg.Cache.TTL,
	})

	mon := monitor.New(sc, st, ns, monitor.Config{
		CheckInterval: cfg.Monitor.CheckInterval,
		Backoff:       cfg.Monitor.Backoff,
		ReapRetention: cfg.Cache.ReapRetention,
		CacheTTL:      cfg.Cache.TTL,
	})
	defer func() {
		if err := mon.Stop(context.Background()); err != nil {
			logger.Error("monitor shutdown error", logger.Err(err))
		}
	}()

	if len(cfg.Monitor.Paths) > 0 {
		if err := mon.Start(cfg.Monitor.Paths); err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
		logger.Info("Monitor started", logger.KeyTotalPaths, len(cfg.Monitor.Paths))
	} else {
		logger.Info("Monitor idle, no watch paths configured")
	}

	handlers := api.NewHandlers(sc, st, analyzer, mon, ns, m)
	apiServer, err := api.NewServer(cfg.API, handlers, m)
	if err != nil {
		return err
	}
	logger.Info("API server configured",
		"port", cfg.API.Port, "auth_enabled", cfg.API.AuthEnabled)

	// A dedicated metrics listener only when a separate port is
	// configured; port 0 serves /metrics on the API router.
	var metricsServer *http.Server
	if m != nil && cfg.Metrics.Port != 0 && cfg.Metrics.Port != cfg.API.Port {
		metricsServer = &http.Server{
			Addr:    net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.Metrics.Port)),
			Handler: m.Handler(),
		}
		go func() {
			logger.Info("Metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx, cfg.ShutdownTimeout)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
