package ft

import (
	"fmt"
	"time"

	"github.com/marmos91/ftserve/internal/dataconn"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/pkg/config"
)

// Config holds the ft adapter settings.
//
// Default values (applied by New if zero):
//   - MaxWorkers: 5
//   - MaxRequestSize: 1024
//   - MaxFileSize: 64 MiB
//   - ChunkSize: 1000
//   - RequestTimeout: 10s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
type Config struct {
	// BindAddress is the IP address to listen on. Empty listens on all
	// interfaces.
	BindAddress string

	// Port is the control port. 0 picks a free port.
	Port int

	// MaxWorkers bounds the worker registry. Connections arriving while it
	// is full are dropped.
	MaxWorkers int

	// MaxRequestSize bounds a request frame, terminator included.
	MaxRequestSize int

	// MaxFileSize is the largest file a -g request may fetch. Larger files
	// are reported as not found.
	MaxFileSize int64

	// ChunkSize is the largest single write on the data connection.
	ChunkSize int

	// RequestTimeout bounds reading the request off the control connection.
	RequestTimeout time.Duration

	// WriteTimeout bounds each status or payload send. 0 disables.
	WriteTimeout time.Duration

	ShutdownTimeout time.Duration

	// MetricsLogInterval enables periodic worker count logging.
	MetricsLogInterval time.Duration

	DataChannel dataconn.Config
}

// FromConfig builds the adapter settings from the loaded configuration and
// the port given on the command line.
func FromConfig(cfg *config.Config, port int) Config {
	return Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            port,
		MaxWorkers:      cfg.Server.MaxWorkers,
		MaxRequestSize:  cfg.Server.MaxRequestSize.Int(),
		MaxFileSize:     cfg.Server.MaxFileSize.Int64(),
		ChunkSize:       cfg.Server.ChunkSize.Int(),
		RequestTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DataChannel: dataconn.Config{
			ConnectDelay:   cfg.DataChannel.ConnectDelay,
			ConnectTimeout: cfg.DataChannel.ConnectTimeout,
			MaxRetries:     cfg.DataChannel.MaxRetries,
			InitialBackoff: cfg.DataChannel.InitialBackoff,
			MaxBackoff:     cfg.DataChannel.MaxBackoff,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = config.DefaultMaxWorkers
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = proto.DefaultMaxRequestSize
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = config.DefaultMaxFileSize.Int64()
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = proto.DefaultChunkSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = config.DefaultRequestTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if c.DataChannel.ConnectTimeout == 0 {
		c.DataChannel.ConnectTimeout = config.DefaultConnectTimeout
	}
	if c.DataChannel.InitialBackoff == 0 {
		c.DataChannel.InitialBackoff = config.DefaultInitialBackoff
	}
	if c.DataChannel.MaxBackoff == 0 {
		c.DataChannel.MaxBackoff = config.DefaultMaxBackoff
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > proto.MaxPort {
		return fmt.Errorf("invalid port %d: must be 0-%d", c.Port, proto.MaxPort)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("invalid max workers %d: must be at least 1", c.MaxWorkers)
	}
	if c.MaxRequestSize < 16 {
		return fmt.Errorf("invalid max request size %d: must be at least 16", c.MaxRequestSize)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("invalid chunk size %d", c.ChunkSize)
	}
	if c.RequestTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.DataChannel.MaxRetries < 0 {
		return fmt.Errorf("invalid data channel max retries %d", c.DataChannel.MaxRetries)
	}
	return nil
}
