package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/marmos91/ftserve/internal/logger"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/telemetry"
	"github.com/marmos91/ftserve/internal/vfs"
	"github.com/marmos91/ftserve/pkg/adapter/ft"
	"github.com/marmos91/ftserve/pkg/api"
	"github.com/marmos91/ftserve/pkg/config"
	"github.com/marmos91/ftserve/pkg/metrics"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/ftserve/pkg/metrics/prometheus"
)

// parsePort validates the positional port argument.
func parsePort(args []string) (int, error) {
	if len(args) != 1 {
		return 0, usageError()
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > proto.MaxPort {
		return 0, usageError()
	}
	return port, nil
}

// loadConfig loads the configuration and applies the command line
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
	}
	if rootDir != "" {
		cfg.Server.RootDir = rootDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is already cancelled when shutting down after a signal.
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		defer metrics.Disable()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	source, err := vfs.NewOS(cfg.Server.RootDir)
	if err != nil {
		return &ExitError{Code: proto.ExitFailure, Err: err}
	}
	logger.Info("Serving directory", "root", cfg.Server.RootDir)

	server := ft.New(ft.FromConfig(cfg, port), source, metrics.NewFTMetrics())

	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer := api.NewServer(api.APIConfig{
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			IdleTimeout:  cfg.API.IdleTimeout,
		}, server, metrics.GetRegistry())
		go func() {
			err := apiServer.Start(ctx)
			if err != nil {
				logger.Error("API server error", logger.Err(err))
			}
			apiDone <- err
		}()
	} else {
		apiDone <- nil
	}

	watchConfig()

	logger.Info("Server is running. Press Ctrl+C to stop.")

	serveErr := server.Serve(ctx)
	stop()

	<-apiDone

	if serveErr != nil {
		logger.Error("Server stopped with error", logger.Err(serveErr))
		return &ExitError{Code: ExitCode(serveErr), Err: serveErr}
	}
	logger.Info("Server stopped")
	return nil
}

// watchConfig applies logging level changes from the configuration file
// without a restart. Without a file there is nothing to watch.
func watchConfig() {
	err := config.Watch(GetConfigFile(), func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", logger.Err(err))
			return
		}
		if logLevel != "" {
			return
		}
		logger.SetLevel(cfg.Logging.Level)
		logger.Info("Configuration reloaded", "level", cfg.Logging.Level)
	})
	if err != nil {
		logger.Debug("Configuration hot reload disabled", logger.Err(err))
	}
}

func configSource(path string) string {
	if path != "" {
		return path
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
