package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/ftserve/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "FTSERVE"

// Config represents the ftserve configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags and arguments (the listening port is always a CLI argument)
//  2. Environment variables (FTSERVE_*), including those loaded from .env
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP status server
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Server configures the control connection listener and its workers
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// DataChannel configures how workers connect back to clients
	DataChannel DataChannelConfig `mapstructure:"data_channel" yaml:"data_channel"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// Each worker produces one trace covering its request and transfer.
type TelemetryConfig struct {
	// Enabled controls whether tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure disables TLS to the collector
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics. Metrics are exposed on the
// API server at /metrics, so they require api.enabled.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the HTTP status server (health, workers, metrics).
type APIConfig struct {
	// Enabled controls whether the status server runs
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port
	// Default: 8090
	Port int `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0" yaml:"idle_timeout"`
}

// ServerConfig configures the control listener and worker limits.
type ServerConfig struct {
	// BindAddress is the address to listen on. Empty listens on all interfaces.
	BindAddress string `mapstructure:"bind_address" validate:"omitempty,ip" yaml:"bind_address"`

	// RootDir is the directory listed by -l and served by -g
	// Default: "." (the working directory)
	RootDir string `mapstructure:"root_dir" validate:"required" yaml:"root_dir"`

	// MaxWorkers bounds workers that have not been reaped yet. Connections
	// arriving while the registry is full are dropped.
	// Default: 5
	MaxWorkers int `mapstructure:"max_workers" validate:"min=1,max=100000" yaml:"max_workers"`

	// MaxRequestSize bounds a request frame including its terminator
	// Default: 1Ki
	MaxRequestSize bytesize.ByteSize `mapstructure:"max_request_size" validate:"gte=16,lte=1048576" yaml:"max_request_size"`

	// MaxFileSize is the largest file served by -g
	// Default: 64Mi
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" validate:"gt=0" yaml:"max_file_size"`

	// ChunkSize is the largest single write on the data connection
	// Default: 1000
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" validate:"gte=1,lte=1048576" yaml:"chunk_size"`

	// RequestTimeout bounds the wait for a complete request frame
	// Default: 10s
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout"`

	// WriteTimeout bounds each status or payload send
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0" yaml:"write_timeout"`

	// ShutdownTimeout is the maximum wait for in-flight workers on shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// DataChannelConfig configures the outbound data connection.
type DataChannelConfig struct {
	// ConnectDelay is waited once before the first connect attempt
	// Default: 0
	ConnectDelay time.Duration `mapstructure:"connect_delay" validate:"gte=0" yaml:"connect_delay"`

	// ConnectTimeout bounds each connect attempt
	// Default: 5s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0" yaml:"connect_timeout"`

	// MaxRetries is the number of extra attempts after a refused connect.
	// 0 disables retrying.
	// Default: 5
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=100" yaml:"max_retries"`

	// InitialBackoff is the first retry delay; later delays grow exponentially
	// Default: 100ms
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0" yaml:"initial_backoff"`

	// MaxBackoff caps the retry delay
	// Default: 2s
	MaxBackoff time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff" yaml:"max_backoff"`
}

// Load loads configuration from defaults, an optional file and the
// environment, then validates it.
//
// A missing file is not an error: defaults and environment overrides still
// apply. configPath may be empty to use the default location.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch reloads the configuration file whenever it changes and passes the
// result to onChange. Invalid edits are reported through the error argument
// and the previous configuration stays in effect for the caller.
//
// Watch returns an error when no configuration file exists to watch.
func Watch(configPath string, onChange func(*Config, error)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return fmt.Errorf("no configuration file to watch: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}

// newViper builds a viper instance seeded with every default so that
// environment overrides apply to all keys, even without a config file.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	walkLeaves(GetDefaultConfig(), func(key string, field reflect.Value) {
		v.SetDefault(key, field.Interface())
	})

	// FTSERVE_SERVER_MAX_WORKERS overrides server.max_workers
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Setting is one flattened configuration entry.
type Setting struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Settings flattens cfg into dotted keys, in declaration order, with
// durations and sizes in their human-readable form.
func Settings(cfg *Config) []Setting {
	var out []Setting
	walkLeaves(cfg, func(key string, field reflect.Value) {
		var s string
		switch val := field.Interface().(type) {
		case time.Duration:
			s = val.String()
		case bytesize.ByteSize:
			s = val.String()
		case []string:
			s = strings.Join(val, ",")
		default:
			s = fmt.Sprintf("%v", val)
		}
		out = append(out, Setting{Key: key, Value: s})
	})
	return out
}

// walkLeaves calls fn for every non-struct field of cfg, keyed by its
// dotted mapstructure path.
func walkLeaves(cfg *Config, fn func(key string, field reflect.Value)) {
	var walk func(prefix string, v reflect.Value)
	walk = func(prefix string, v reflect.Value) {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("mapstructure")
			if tag == "" || tag == "-" {
				continue
			}
			key := tag
			if prefix != "" {
				key = prefix + "." + tag
			}
			if f := v.Field(i); f.Kind() == reflect.Struct {
				walk(key, f)
			} else {
				fn(key, f)
			}
		}
	}
	walk("", reflect.ValueOf(cfg).Elem())
}

// configDecodeHooks returns the decode hooks for the custom field types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// files and env vars can use sizes like "1Ki" or "64MiB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration. Raw
// integers are nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/ftserve, ~/.config/ftserve, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ftserve")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ftserve")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
