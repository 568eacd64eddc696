// Package main is the entry point for the Alexander Assets server.
// It serves stored assets over HTTP, rendering image variations on demand.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-assets/internal/app"
	"github.com/prn-tf/alexander-assets/internal/config"
	"github.com/prn-tf/alexander-assets/internal/handler"
	"github.com/prn-tf/alexander-assets/internal/metrics"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "alexander-server",
	Short:         "Serve assets and image variations over HTTP",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := app.NewLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting Alexander Assets Server")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	a, err := app.New(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("backends", a.Describe()).Msg("components initialized")

	// Metrics either share the main router or get their own listener.
	metricsPath := ""
	if m != nil && cfg.Metrics.Port == 0 {
		metricsPath = cfg.Metrics.Path
	}

	router := handler.NewRouter(handler.RouterConfig{
		AssetHandler: handler.NewAssetHandler(a.Assets, a.Variations, logger, handler.AssetHandlerConfig{
			BufferSize:    cfg.Delivery.BufferSize,
			MaxUploadSize: cfg.Server.MaxBodySize,
		}),
		Health:      a.Database,
		Metrics:     m,
		MetricsPath: metricsPath,
		Logger:      logger,
	})

	servers := []*http.Server{{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}}

	if m != nil && cfg.Metrics.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		})
	}

	if cfg.Cleanup.Enabled {
		a.Cleanup.Start()
		defer a.Cleanup.Stop()
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go serve(srv, logger, errCh)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		shutdown(servers, cfg.Server, logger)
		return err
	}

	shutdown(servers, cfg.Server, logger)
	return nil
}

func serve(srv *http.Server, logger zerolog.Logger, errCh chan<- error) {
	logger.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
}

func shutdown(servers []*http.Server, cfg config.ServerConfig, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("graceful shutdown failed")
		}
	}
}
