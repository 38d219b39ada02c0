// Package logging provides structured logging with trace-ID propagation,
// adapted from the service layer's infrastructure/logging package for the
// broker's single-binary deployment (no per-service fan-out).
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	orgKey     ctxKey = "organization"
)

// Logger wraps logrus.Logger with broker-scoped fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("gateway", "ledger", ...).
func New(component, level, format string) *Logger {
	l := logrus.New()

	parsedLevel, err := logrus.ParseLevel(level)
	if err != nil {
		parsedLevel = logrus.InfoLevel
	}
	l.SetLevel(parsedLevel)

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	l.SetOutput(os.Stdout)
	return &Logger{Logger: l, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns a logrus entry carrying the broker's component name
// plus any trace ID/organization recorded on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if org := GetOrganization(ctx); org != "" {
		entry = entry.WithField("organization", org)
	}
	return entry
}

// WithError returns a logrus entry annotated with err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err.Error()})
}

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOrganization attaches the organization name under evaluation to ctx.
func WithOrganization(ctx context.Context, org string) context.Context {
	return context.WithValue(ctx, orgKey, org)
}

// GetOrganization retrieves the organization name from ctx, if any.
func GetOrganization(ctx context.Context) string {
	if v, ok := ctx.Value(orgKey).(string); ok {
		return v
	}
	return ""
}

// LogRequest logs a completed broker request.
func (l *Logger) LogRequest(ctx context.Context, method, entity string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"entity":      entity,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("request handled")
}

// LogAllocation logs a successful ticket/timeslot allocation.
func (l *Logger) LogAllocation(ctx context.Context, org, entity, kind string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"organization": org,
		"entity":       entity,
		"resource":     kind,
	}).Info("resource allocated")
}

// LogRejection logs a policy rejection at a tree node.
func (l *Logger) LogRejection(ctx context.Context, entity, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"entity": entity,
		"reason": reason,
	}).Warn("policy rejected request")
}

var defaultLogger *Logger

// Default returns a process-wide logger, initializing one from the
// environment on first use.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("broker")
	}
	return defaultLogger
}
