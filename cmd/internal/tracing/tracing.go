// Package tracing sets up OpenTelemetry for the promote CLI.
//
// The exporter is chosen by the otel_exporter setting (PROMOTE_OTEL_EXPORTER):
//   - "xrayudp": send spans to an X-Ray daemon on the build host over UDP
//   - "stdout": print spans to stderr as they end
//   - "none" or empty: record spans in process only, nothing is exported
//
// Trace context is propagated in both W3C and X-Ray formats, so spans started
// by the CLI line up with the AWS service segments of the calls it makes.
package tracing

import (
	"context"
	"io"
	"os"

	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by the pipeline.
const InstrumentationName = "github.com/basewarphq/bwpromote"

// New returns a tracer provider for the given exporter. Call Shutdown on it
// before exiting to flush pending spans.
func New(ctx context.Context, exporter string) (*sdktrace.TracerProvider, error) {
	return NewWithWriter(ctx, exporter, os.Stderr)
}

// NewWithWriter is New with the stdout exporter writing to w.
func NewWithWriter(ctx context.Context, exporter string, w io.Writer) (*sdktrace.TracerProvider, error) {
	switch exporter {
	case "xrayudp":
		exp, err := xrayudp.NewSpanExporter(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "creating X-Ray exporter")
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exp)),
			sdktrace.WithIDGenerator(xray.NewIDGenerator()),
		), nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(err, "creating stdout exporter")
		}
		// The CLI is short lived; export synchronously so nothing is lost on exit.
		return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exp))), nil
	case "none", "":
		return sdktrace.NewTracerProvider(), nil
	default:
		return nil, errors.Newf("unsupported otel exporter: %q (supported: xrayudp, stdout, none)", exporter)
	}
}

// Propagator is the text map propagator injected into AWS calls.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}, xray.Propagator{})
}

// Tracer returns the pipeline tracer from tp.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(InstrumentationName)
}

// Shutdown flushes and stops tp.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
