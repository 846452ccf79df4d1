package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/goadesign/agentic-core/agentic/telemetry"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	l := telemetry.NewNoopLogger()
	ctx := context.Background()
	l.Debug(ctx, "debug", "k", "v")
	l.Info(ctx, "info")
	l.Warn(ctx, "warn", "count", 3)
	l.Error(ctx, "error", "err", nil)
}

func TestNoopMetricsDoesNotPanic(t *testing.T) {
	m := telemetry.NewNoopMetrics()
	m.IncCounter("calls", 1, "tool", "fsread")
	m.RecordTimer("latency", 10*time.Millisecond)
	m.RecordGauge("queue_depth", 4)
}

func TestNoopTracerReturnsUsableSpan(t *testing.T) {
	tr := telemetry.NewNoopTracer()
	ctx, span := tr.Start(context.Background(), "op")
	span.AddEvent("started")
	span.End()
	same := tr.Span(ctx)
	same.End()
}
