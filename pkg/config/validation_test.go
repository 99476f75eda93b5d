package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "InvalidLogLevel",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "logging.level: must be one of",
		},
		{
			name:    "InvalidLogFormat",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "ZeroWorkers",
			mutate:  func(c *Config) { c.Server.MaxWorkers = 0 },
			wantErr: "server.max_workers: must be at least 1",
		},
		{
			name:    "BadBindAddress",
			mutate:  func(c *Config) { c.Server.BindAddress = "localhost" },
			wantErr: "server.bind_address: must be an IP address",
		},
		{
			name:    "TinyRequestFrame",
			mutate:  func(c *Config) { c.Server.MaxRequestSize = 8 },
			wantErr: "server.max_request_size",
		},
		{
			name:    "NegativeRetries",
			mutate:  func(c *Config) { c.DataChannel.MaxRetries = -1 },
			wantErr: "data_channel.max_retries",
		},
		{
			name: "BackoffCapBelowInitial",
			mutate: func(c *Config) {
				c.DataChannel.InitialBackoff = time.Second
				c.DataChannel.MaxBackoff = 10 * time.Millisecond
			},
			wantErr: "data_channel.max_backoff",
		},
		{
			name:    "SampleRateOutOfRange",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "telemetry.sample_rate: must be at most 1",
		},
		{
			name:    "UnknownProfileType",
			mutate:  func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"heap"} },
			wantErr: "telemetry.profiling.profile_types",
		},
		{
			name:    "MetricsWithoutAPI",
			mutate:  func(c *Config) { c.Metrics.Enabled = true },
			wantErr: "metrics.enabled requires api.enabled",
		},
		{
			name: "ChunkLargerThanFileLimit",
			mutate: func(c *Config) {
				c.Server.MaxFileSize = 100
				c.Server.ChunkSize = 1000
			},
			wantErr: "server.chunk_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_MetricsWithAPI(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Enabled = true
	cfg.Metrics.Enabled = true

	assert.NoError(t, Validate(cfg))
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftserve", "config.yaml")

	require.NoError(t, InitConfigToPath(path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "max_workers: 5")
	assert.Contains(t, string(content), "chunk_size: 1000")

	// The generated sample loads back to the defaults.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)

	t.Run("RefusesOverwrite", func(t *testing.T) {
		err := InitConfigToPath(path, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("Force", func(t *testing.T) {
		assert.NoError(t, InitConfigToPath(path, true))
	})
}
