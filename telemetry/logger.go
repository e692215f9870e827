package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogVerdict logs the outcome of a guardrail check.
func (l *Logger) LogVerdict(ctx context.Context, operation, domain, environment, outcome, reason string) {
	event := l.WithContext(ctx).Info().
		Str("operation", operation).
		Str("domain", domain).
		Str("environment", environment).
		Str("outcome", outcome)
	if reason != "" {
		event = event.Str("reason", reason)
	}
	event.Msg("guardrail check")
}

// LogResolveError logs a failed catalog resolution.
func (l *Logger) LogResolveError(ctx context.Context, domain, environment, resourceType string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("domain", domain).
		Str("environment", environment).
		Str("resource_type", resourceType).
		Msg("resolution failed")
}

// LogAuditWrite logs a journal append failure. The journal is the audit
// trail of record, so failures here are errors even when the triggering
// operation succeeded.
func (l *Logger) LogAuditWrite(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("audit append failed")
}
