package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/observability"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backend"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: stop accepting requests and wait up to
    server.shutdown_timeout for in-flight sends`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	cmd.Flags().String("host", "", "override server.host")
	cmd.Flags().Int("port", 0, "override server.port")
	cmd.Flags().String("log-level", "", "override logging.level")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd, map[string]string{
		"host":      "server.host",
		"port":      "server.port",
		"log-level": "logging.level",
	})
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = versionInfo.Version
	}

	logger, err := observability.NewLoggerTo(cfg.Logging, a.serverLogSink())
	if err != nil {
		return Exit(ExitConfigInvalid, err)
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()
	if logger.Core().Enabled(zapcore.DebugLevel) {
		collector.RegisterHook(metrics.NewLogHook(logger.Named("metrics"), nil))
	}

	f := a.newFactory()
	f.SetLogger(logger)
	f.SetMetricsCollector(collector)

	d, err := f.BuildDispatcher(cfg)
	if err != nil {
		return Exit(ExitConfigInvalid, err)
	}

	srv := backend.NewServer(cfg.Backend(), d,
		backend.WithLogger(logger),
		backend.WithTransportTypes(transportTypes(cfg)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown requested")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = backend.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func transportTypes(cfg *config.Config) map[string]string {
	kinds := make(map[string]string, len(cfg.Transports))
	for _, t := range cfg.Transports {
		kinds[t.Name] = t.Type
	}
	return kinds
}
