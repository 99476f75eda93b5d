package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/ftserve/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.Equal(t, 5, cfg.Server.MaxWorkers)
	assert.Equal(t, bytesize.ByteSize(1000), cfg.Server.ChunkSize)
	assert.Equal(t, bytesize.KiB, cfg.Server.MaxRequestSize)
	assert.Equal(t, 5*time.Second, cfg.DataChannel.ConnectTimeout)
	assert.Equal(t, DefaultMaxRetries, cfg.DataChannel.MaxRetries)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
server:
  root_dir: /srv/files
  max_workers: 12
  max_file_size: 2MiB
  chunk_size: 512
  request_timeout: 3s
data_channel:
  connect_delay: 250ms
  max_retries: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/srv/files", cfg.Server.RootDir)
	assert.Equal(t, 12, cfg.Server.MaxWorkers)
	assert.Equal(t, 2*bytesize.MiB, cfg.Server.MaxFileSize)
	assert.Equal(t, bytesize.ByteSize(512), cfg.Server.ChunkSize)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.DataChannel.ConnectDelay)
	assert.Zero(t, cfg.DataChannel.MaxRetries, "explicit zero disables retries")

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultWriteTimeout, cfg.Server.WriteTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  max_workers: 12
`)
	t.Setenv("FTSERVE_SERVER_MAX_WORKERS", "3")
	t.Setenv("FTSERVE_SERVER_MAX_FILE_SIZE", "10Ki")
	t.Setenv("FTSERVE_DATA_CHANNEL_CONNECT_TIMEOUT", "750ms")
	t.Setenv("FTSERVE_TELEMETRY_PROFILING_PROFILE_TYPES", "cpu,goroutines")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Server.MaxWorkers)
	assert.Equal(t, 10*bytesize.KiB, cfg.Server.MaxFileSize)
	assert.Equal(t, 750*time.Millisecond, cfg.DataChannel.ConnectTimeout)
	assert.Equal(t, []string{"cpu", "goroutines"}, cfg.Telemetry.Profiling.ProfileTypes)
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	t.Setenv("FTSERVE_SERVER_ROOT_DIR", "/data")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.Server.RootDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
server:
  max_workers: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.max_workers")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.MaxWorkers = 9
	cfg.Server.MaxFileSize = 3 * bytesize.MiB
	cfg.DataChannel.ConnectDelay = 2 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSettings(t *testing.T) {
	settings := Settings(GetDefaultConfig())

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}

	assert.Equal(t, "INFO", values["logging.level"])
	assert.Equal(t, "5", values["server.max_workers"])
	assert.Equal(t, "64MiB", values["server.max_file_size"])
	assert.Equal(t, "10s", values["server.request_timeout"])
	assert.Equal(t, "100ms", values["data_channel.initial_backoff"])
	assert.Contains(t, values["telemetry.profiling.profile_types"], "cpu")
	assert.Equal(t, "logging.level", settings[0].Key)
}

func TestWatch_NoFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "absent.yaml"), func(*Config, error) {})
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "server:\n  max_workers: 2\n")

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(cfg *Config, err error) {
		if err == nil {
			changes <- cfg
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("server:\n  max_workers: 7\n"), 0o600))

	require.Eventually(t, func() bool {
		select {
		case cfg := <-changes:
			return cfg.Server.MaxWorkers == 7
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FTSERVE_SERVER_MAX_WORKERS=4\n"), 0o600))

	t.Setenv("FTSERVE_SERVER_MAX_WORKERS", "")
	require.NoError(t, os.Unsetenv("FTSERVE_SERVER_MAX_WORKERS"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "4", os.Getenv("FTSERVE_SERVER_MAX_WORKERS"))

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Server.MaxWorkers)
}
