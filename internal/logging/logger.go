// Package logging provides structured logging with tenant/job/trace context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through job and connector
// call chains.
type ContextKey string

const (
	// TraceIDKey is the context key for the request/job trace ID.
	TraceIDKey ContextKey = "trace_id"
	// TenantIDKey is the context key for the tenant the current operation
	// is scoped to.
	TenantIDKey ContextKey = "tenant_id"
	// SourceKey is the context key for the connector source tag
	// (e.g. "salesforce", "gitlab_mr").
	SourceKey ContextKey = "source"
	// JobIDKey is the context key for the ingest job id.
	JobIDKey ContextKey = "job_id"
)

// Logger wraps logrus.Logger with ingestion-engine context propagation.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the named service.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a logger entry populated with trace/tenant/source/job
// fields found on the context.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(TenantIDKey); v != nil {
		entry = entry.WithField("tenant_id", v)
	}
	if v := ctx.Value(SourceKey); v != nil {
		entry = entry.WithField("source", v)
	}
	if v := ctx.Value(JobIDKey); v != nil {
		entry = entry.WithField("job_id", v)
	}

	return entry
}

// WithFields creates a logger entry with additional custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a logger entry annotated with an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// SetOutput redirects logger output, used by tests to capture log lines.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a fresh trace ID for a job or request.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the trace ID off the context, if present.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTenantID attaches a tenant id to the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// GetTenantID reads the tenant id off the context, if present.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(TenantIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSource attaches a connector source tag to the context.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// WithJobID attaches an ingest job id to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// LogJobStart logs the start of an extractor job invocation.
func (l *Logger) LogJobStart(ctx context.Context, kind string) {
	l.WithContext(ctx).WithField("job_kind", kind).Info("job started")
}

// LogJobResult logs the terminal outcome of an extractor job invocation.
func (l *Logger) LogJobResult(ctx context.Context, kind string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"job_kind":    kind,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	entry.Info("job completed")
}

// LogDatabaseQuery logs a database query against a tenant store.
func (l *Logger) LogDatabaseQuery(ctx context.Context, query string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"query":       query,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("database query failed")
		return
	}
	entry.Debug("database query executed")
}

// LogConnectorCall logs a single outbound call made by a connector client.
// path must already be redacted by the caller.
func (l *Logger) LogConnectorCall(ctx context.Context, method, redactedPath string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        redactedPath,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("connector call")
}

// Debug logs a debug message with context fields.
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	if l.Logger.Level >= logrus.DebugLevel {
		l.WithContext(ctx).WithFields(fields).Debug(message)
	}
}

// Info logs an info message with context fields.
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

// Warn logs a warning message with context fields.
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

// Error logs an error message with context fields.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level default logger, lazily creating a
// fallback if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("ingestflow", "info", "json")
	}
	return defaultLogger
}

// FormatDuration renders a duration as milliseconds for log fields.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
}
