package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/config"
	"github.com/3leaps/zonestore/internal/observability"
	"github.com/3leaps/zonestore/internal/server"
	"github.com/3leaps/zonestore/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Expose the configured store over HTTP.

Routes:
  GET    /health, /health/live, /health/ready
  GET    /version
  GET    /metrics                  (when metrics.enabled)
  GET    /v1/objects?prefix=&limit=&cursor=&metadata=
  GET    /v1/objects/<key>
  HEAD   /v1/objects/<key>
  PUT    /v1/objects/<key>
  DELETE /v1/objects/<key>

With --readonly only the read routes are served.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost     string
	servePort     int
	serveLogLevel string
	serveNoMetric bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config, localhost)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().BoolVar(&serveNoMetric, "no-metrics", false, "Disable the metrics endpoint")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	srv := map[string]any{}
	if cmd.Flags().Changed("host") {
		srv["host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		srv["port"] = servePort
	}
	if len(srv) > 0 {
		out["server"] = srv
	}
	if cmd.Flags().Changed("log-level") {
		out["logging"] = map[string]any{"level": serveLogLevel}
	}
	if cmd.Flags().Changed("no-metrics") {
		out["metrics"] = map[string]any{"enabled": !serveNoMetric}
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, storageOverrides(cmd), serveOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	log, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	log = log.Named(appName).With(zap.String("run_id", runID))
	defer func() { _ = log.Sync() }()

	store, err := newStore(cmd.Context(), cfg.Storage, log.Named("store"))
	if err != nil {
		log.Error("Failed to create store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open storage backend", err)
	}
	opts := []server.Option{
		server.WithStore(store),
		server.WithReadOnly(IsReadOnly()),
		server.WithLogger(log),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, server.WithMetrics(reg, cfg.Metrics.Path))
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting gateway",
		zap.String("addr", srv.Addr()),
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("readonly", IsReadOnly()))

	if err := srv.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Gateway failed", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) && cmd.Context().Err() == nil {
		log.Info("Gateway stopped on signal")
	}
	return nil
}
