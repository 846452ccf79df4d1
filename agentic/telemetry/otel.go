package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	otellogglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goadesign/agentic-core/agentic"

type (
	// OtelLogger emits structured logs directly through go.opentelemetry.io/otel/log,
	// replacing the teacher's goa.design/clue/log wrapper (clue is dropped;
	// see DESIGN.md).
	OtelLogger struct {
		logger otellog.Logger
	}

	// OtelMetrics records counters, timers, and gauges through the global
	// OTEL MeterProvider.
	OtelMetrics struct {
		meter metric.Meter
	}

	// OtelTracer creates spans through the global OTEL TracerProvider.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewOtelLogger constructs a Logger backed by the global otel LoggerProvider.
// Configure the provider before use (log/global.SetLoggerProvider or
// environment variables such as OTEL_EXPORTER_OTLP_ENDPOINT).
func NewOtelLogger() Logger {
	return OtelLogger{logger: otellogglobal.GetLoggerProvider().Logger(instrumentationName)}
}

// NewOtelMetrics constructs a Metrics recorder backed by the global otel
// MeterProvider.
func NewOtelMetrics() Metrics {
	return &OtelMetrics{meter: otel.Meter(instrumentationName)}
}

// NewOtelTracer constructs a Tracer backed by the global otel TracerProvider.
func NewOtelTracer() Tracer {
	return &OtelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (l OtelLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, otellog.SeverityDebug, msg, keyvals)
}

func (l OtelLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, otellog.SeverityInfo, msg, keyvals)
}

func (l OtelLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, otellog.SeverityWarn, msg, keyvals)
}

func (l OtelLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, otellog.SeverityError, msg, keyvals)
}

func (l OtelLogger) emit(ctx context.Context, sev otellog.Severity, msg string, keyvals []any) {
	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetSeverity(sev)
	rec.SetBody(otellog.StringValue(msg))
	rec.AddAttributes(kvToLogAttrs(keyvals)...)
	l.logger.Emit(ctx, rec)
}

func kvToLogAttrs(keyvals []any) []otellog.KeyValue {
	var kvs []otellog.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var val any
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		kvs = append(kvs, otellog.String(key, fmt.Sprint(val)))
	}
	return kvs
}

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	// OTEL has no synchronous gauge instrument; a histogram stands in, as
	// the teacher's ClueMetrics already did.
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		k := tags[i]
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &otelSpan{span: span}
}

func (t *OtelTracer) Span(ctx context.Context) Span {
	return &otelSpan{span: trace.SpanFromContext(ctx)}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToSpanAttrs(attrs)...))
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

func kvToSpanAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(keyvals); i += 2 {
		keyStr, _ := keyvals[i].(string)
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(keyStr, val))
		case int:
			attrs = append(attrs, attribute.Int(keyStr, val))
		case int64:
			attrs = append(attrs, attribute.Int64(keyStr, val))
		case float64:
			attrs = append(attrs, attribute.Float64(keyStr, val))
		case bool:
			attrs = append(attrs, attribute.Bool(keyStr, val))
		default:
			attrs = append(attrs, attribute.String(keyStr, fmt.Sprint(val)))
		}
	}
	return attrs
}
