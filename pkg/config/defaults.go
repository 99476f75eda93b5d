package config

import (
	"strings"
	"time"

	"github.com/marmos91/ftserve/internal/bytesize"
)

// Server defaults.
const (
	DefaultRootDir         = "."
	DefaultMaxWorkers      = 5
	DefaultMaxRequestSize  = bytesize.KiB
	DefaultMaxFileSize     = 64 * bytesize.MiB
	DefaultChunkSize       = bytesize.ByteSize(1000)
	DefaultRequestTimeout  = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Data channel defaults.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
)

// DefaultAPIPort is the default port of the status server.
const DefaultAPIPort = 8090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced only where zero is not a meaningful setting:
// data_channel.max_retries and data_channel.connect_delay keep an explicit 0.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyAPIDefaults(&cfg.API)
	applyServerDefaults(&cfg.Server)
	applyDataChannelDefaults(&cfg.DataChannel)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Standard OTLP gRPC port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultAPIPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.RootDir == "" {
		cfg.RootDir = DefaultRootDir
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyDataChannelDefaults(cfg *DataChannelConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Used to seed the loader, to generate sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		DataChannel: DataChannelConfig{
			MaxRetries: DefaultMaxRetries,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
