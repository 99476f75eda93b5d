package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// InitConfig writes a sample configuration file to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := renderSample(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var sampleTemplate = template.Must(template.New("config").Parse(`# ftserve configuration
#
# Every key can be overridden with an environment variable named
# FTSERVE_<SECTION>_<KEY>, e.g. FTSERVE_SERVER_MAX_WORKERS=10.
# The listening port is always given on the command line: ftserver <port>

logging:
  # DEBUG, INFO, WARN or ERROR
  level: {{.Logging.Level}}
  # text or json
  format: {{.Logging.Format}}
  # stdout, stderr or a file path
  output: {{.Logging.Output}}

server:
  # Empty listens on all interfaces
  bind_address: "{{.Server.BindAddress}}"
  # Directory listed by -l and served by -g
  root_dir: "{{.Server.RootDir}}"
  # Workers that may exist before new connections are dropped
  max_workers: {{.Server.MaxWorkers}}
  max_request_size: {{.Server.MaxRequestSize}}
  max_file_size: {{.Server.MaxFileSize}}
  # Largest single write on the data connection
  chunk_size: {{.Server.ChunkSize}}
  request_timeout: {{.Server.RequestTimeout}}
  write_timeout: {{.Server.WriteTimeout}}
  shutdown_timeout: {{.Server.ShutdownTimeout}}

data_channel:
  # Pause before connecting back to the client
  connect_delay: {{.DataChannel.ConnectDelay}}
  connect_timeout: {{.DataChannel.ConnectTimeout}}
  # Extra attempts when the client refuses the connection, 0 disables
  max_retries: {{.DataChannel.MaxRetries}}
  initial_backoff: {{.DataChannel.InitialBackoff}}
  max_backoff: {{.DataChannel.MaxBackoff}}

api:
  # Serves /health, /health/ready, /api/v1/workers and /metrics
  enabled: {{.API.Enabled}}
  port: {{.API.Port}}
  read_timeout: {{.API.ReadTimeout}}
  write_timeout: {{.API.WriteTimeout}}
  idle_timeout: {{.API.IdleTimeout}}

metrics:
  # Requires api.enabled
  enabled: {{.Metrics.Enabled}}

telemetry:
  enabled: {{.Telemetry.Enabled}}
  endpoint: "{{.Telemetry.Endpoint}}"
  insecure: {{.Telemetry.Insecure}}
  sample_rate: {{.Telemetry.SampleRate}}
  profiling:
    enabled: {{.Telemetry.Profiling.Enabled}}
    endpoint: "{{.Telemetry.Profiling.Endpoint}}"
    profile_types:
{{- range .Telemetry.Profiling.ProfileTypes}}
      - {{.}}
{{- end}}
`))

func renderSample(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := sampleTemplate.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to render config template: %w", err)
	}
	return buf.Bytes(), nil
}
