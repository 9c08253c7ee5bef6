// Package observability provides OpenTelemetry metrics, structured logging,
// and a diagnostics HTTP endpoint for the matchkit CLI.
package observability

import "log/slog"

const (
	// defaultServiceName is the default OTel resource service name.
	defaultServiceName = "matchkit"

	// defaultShutdownTimeoutSec bounds the metric flush on shutdown.
	defaultShutdownTimeoutSec = 5
)

// Config holds the observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables the OTLP exporter.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// EnablePrometheus attaches a Prometheus reader and exposes a scrape
	// handler on the diagnostics server.
	EnablePrometheus bool

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config suitable for zero-configuration CLI runs.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
