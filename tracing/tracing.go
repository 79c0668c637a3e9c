/*
Package tracing initializes the OpenTelemetry pipeline of the gateway.

The proxy creates an ingress span for every request, a span for each
filter of the matched route, and an upstream span for the forwarded
request. The trace context is extracted from the incoming request, and
injected into the upstream request, using the W3C Trace Context and
Baggage formats.

Init installs the global tracer provider and propagator. Without calling
it, the spans are not recorded.
*/
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// ExporterNone disables the tracing.
	ExporterNone = "none"

	// ExporterStdout prints the finished spans as JSON.
	ExporterStdout = "stdout"

	// ExporterDebug prints the finished spans into the debug log.
	ExporterDebug = "debug"

	// ExporterOTLP sends the spans to an OTLP/HTTP collector, configured
	// by the OTEL_EXPORTER_OTLP_* environment variables.
	ExporterOTLP = "otlp"

	DefaultServiceName = "rgw"
)

var log = logrus.WithField("package", "tracing")

// Options of the tracing pipeline.
type Options struct {

	// Exporter of the spans, one of "none", "stdout", "debug" and
	// "otlp". Empty means "none".
	Exporter string

	// Output of the stdout exporter. Defaults to os.Stdout.
	Output io.Writer

	// Value of the service.name resource attribute. Defaults to
	// "rgw". OTEL_RESOURCE_ATTRIBUTES are applied, too.
	ServiceName string
}

type writerFunc func([]byte) (int, error)

func (wf writerFunc) Write(p []byte) (int, error) {
	return wf(p)
}

func noShutdown(context.Context) error { return nil }

func newExporter(ctx context.Context, o Options) (sdktrace.SpanExporter, error) {
	switch o.Exporter {
	case ExporterOTLP:
		return otlptracehttp.New(ctx)
	case ExporterStdout:
		out := o.Output
		if out == nil {
			out = os.Stdout
		}

		return stdouttrace.New(stdouttrace.WithWriter(out))
	case ExporterDebug:
		return stdouttrace.New(stdouttrace.WithWriter(writerFunc(func(p []byte) (int, error) {
			log.Debugf("Span: %s", p)
			return len(p), nil
		})))
	default:
		return nil, fmt.Errorf("unsupported traces exporter: %q", o.Exporter)
	}
}

// Init sets up the global tracer provider and propagator. When err is
// nil, the returned shutdown function needs to be called to flush the
// pending spans.
func Init(ctx context.Context, o Options) (shutdown func(context.Context) error, err error) {
	if o.Exporter == "" || o.Exporter == ExporterNone {
		log.Debug("tracing disabled")
		return noShutdown, nil
	}

	for _, name := range []string{
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
		"OTEL_RESOURCE_ATTRIBUTES",
	} {
		log.Debugf("%s: %s", name, os.Getenv(name))
	}

	exp, err := newExporter(ctx, o)
	if err != nil {
		return nil, err
	}

	if o.ServiceName == "" {
		o.ServiceName = DefaultServiceName
	}

	res, err := resource.Merge(
		resource.Environment(),
		resource.NewSchemaless(attribute.String("service.name", o.ServiceName)),
	)
	if err != nil {
		return nil, errors.Join(err, exp.Shutdown(ctx))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) { log.Error(err) }))
	otel.SetLogger(logrusr.New(log))

	log.Infof("tracing enabled, exporter: %s", o.Exporter)
	return tp.Shutdown, nil
}
