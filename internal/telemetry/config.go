package telemetry

// ServiceName is reported to the trace and profiling backends.
const ServiceName = "ftserve"

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled bool

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string

	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS to the collector
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	// Values at or above 1 sample every worker, at or below 0 none.
	SampleRate float64
}

// DefaultConfig returns a disabled configuration pointing at a local collector.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    ServiceName,
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
