// Package observability provides the logging and tracing primitives shared by
// every searchd component. Components receive a Logger and namespace it with
// WithPrefix; tracing is optional and initialized once in main.
package observability

import (
	"go.opentelemetry.io/otel/trace"
)

// LogLevel defines log message severity.
type LogLevel string

// Log levels, ordered from most to least verbose.
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for structured logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithPrefix returns a logger namespaced to the given component.
	WithPrefix(prefix string) Logger
	// With returns a logger that attaches the given fields to every record.
	With(fields map[string]interface{}) Logger
}

// TracingConfig holds the configuration for distributed tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Endpoint    string `mapstructure:"endpoint"`
}

// Span represents a trace span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
	SpanContext() trace.SpanContext
}
