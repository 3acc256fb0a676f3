package logging_test

import (
	"context"
	"testing"

	"github.com/basewarphq/bwpromote/cmd/internal/logging"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTraceFields(t *testing.T) {
	t.Parallel()
	if fields := logging.TraceFields(context.Background()); fields != nil {
		t.Errorf("fields without a span = %v", fields)
	}

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	core, logs := observer.New(zapcore.InfoLevel)
	logging.FromContext(ctx, zap.New(core)).Info("hello")

	entry := logs.All()[0]
	ctxMap := entry.ContextMap()
	if ctxMap["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", ctxMap["trace_id"])
	}
	if ctxMap["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v", ctxMap["span_id"])
	}
}

func TestNewRespectsLevel(t *testing.T) {
	t.Parallel()
	logger, err := logging.New(zapcore.WarnLevel)
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info enabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error disabled at warn level")
	}
}
