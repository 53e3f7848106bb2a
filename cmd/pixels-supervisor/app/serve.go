package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pixels-app/pixels-supervisor/internal/api"
	v1 "github.com/pixels-app/pixels-supervisor/internal/api/v1"
	"github.com/pixels-app/pixels-supervisor/internal/backend"
	"github.com/pixels-app/pixels-supervisor/internal/broadcast"
	"github.com/pixels-app/pixels-supervisor/internal/config"
	"github.com/pixels-app/pixels-supervisor/internal/coordinator"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
	"github.com/pixels-app/pixels-supervisor/internal/telemetry"
	"github.com/pixels-app/pixels-supervisor/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend supervisor",
	Long: `Run the backend supervisor daemon.

The daemon requires a configuration file (--config) describing how to launch
and reach the Pixels backend process, plus optional restart and lifecycle
tunables. It exposes a small HTTP surface for the host:

  GET  /v1/status            latest availability snapshot
  GET  /v1/status/stream     availability snapshots as server-sent events
  POST /v1/lifecycle/{phase} host lifecycle phase report
  POST /v1/retry             manual re-arm after permanent failure`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // enough to tear the backend down
	serverReadTimeout      = 10 * time.Second // enough for headers and small requests
	serverIdleTimeout      = 60 * time.Second // keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	cfg, err := config.Load(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"backend_command", cfg.Backend.Command,
		"health_url", cfg.Backend.HealthURL)

	address := viper.GetString("address")
	if address == "" {
		address = cfg.ServerAddress()
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx,
		telemetry.WithMeterServiceName(telemetry.DefaultServiceName),
		telemetry.WithMeterServiceVersion(versions.GetVersionInfo().Version),
		telemetry.WithTelemetryConfig(cfg.Telemetry),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if shutdown, ok := meterProvider.(interface{ Shutdown(context.Context) error }); ok {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to shut down meter provider", "error", err)
			}
		}
	}()

	metrics, err := telemetry.NewSupervisorMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create supervisor metrics: %w", err)
	}

	// Assemble the coordinator core: controller -> supervisor -> loop ->
	// broadcaster, with the observer feeding intents in.
	controller := backend.NewProcessController(cfg.ProcessConfig())
	broadcaster := broadcast.New()
	coord := coordinator.New(controller, cfg.SupervisorSettings(), broadcaster,
		coordinator.WithMetrics(metrics))

	hub := lifecycle.NewHub()
	observer := lifecycle.NewObserver(cfg.GracePeriod(), coord.OnIntent)
	observer.Attach(hub)

	routes := v1.NewRoutes(broadcaster, hub.Dispatch, coord.Retry)
	router := api.NewServer(routes, api.WithMiddlewares(
		middleware.RequestID,
		api.LoggingMiddleware,
		middleware.Recoverer,
	))

	server := &http.Server{
		Addr:        address,
		Handler:     router,
		ReadTimeout: serverReadTimeout,
		IdleTimeout: serverIdleTimeout,
		// No write timeout: /v1/status/stream holds its connection open for
		// as long as the subscriber listens.
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coord.Run(gCtx)
	})

	g.Go(func() error {
		slog.Info("Supervisor API listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// The daemon starting is the host foregrounding: bring the backend up.
	hub.Dispatch(lifecycle.PhaseResumed)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("supervisor exited with error: %w", err)
	}
	slog.Info("Supervisor shut down cleanly")
	return nil
}
