package proxy

import (
	stdlibcontext "context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/rgwgateway/rgw/proxy"

	IngressSpanName  = "ingress"
	UpstreamSpanName = "upstream"
)

const (
	routeIDAttribute    = attribute.Key("rgw.route_id")
	httpMethodAttribute = attribute.Key("http.method")
	httpPathAttribute   = attribute.Key("http.path")
	httpURLAttribute    = attribute.Key("http.url")
	httpHostAttribute   = attribute.Key("http.host")
	httpStatusAttribute = attribute.Key("http.status_code")
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return tp.Tracer(tracerName)
}

// startIngressSpan continues the trace of the incoming request, when it
// carries one.
func startIngressSpan(tracer trace.Tracer, r *http.Request) (*http.Request, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, IngressSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			httpMethodAttribute.String(r.Method),
			httpPathAttribute.String(r.URL.Path),
			httpHostAttribute.String(r.Host),
		),
	)

	return r.WithContext(ctx), span
}

func startUpstreamSpan(ctx stdlibcontext.Context, tracer trace.Tracer, req *http.Request, routeId string) trace.Span {
	_, span := tracer.Start(ctx, UpstreamSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			routeIDAttribute.String(routeId),
			httpMethodAttribute.String(req.Method),
			httpURLAttribute.String(req.URL.Redacted()),
		),
	)

	otel.GetTextMapPropagator().Inject(trace.ContextWithSpan(ctx, span), propagation.HeaderCarrier(req.Header))
	return span
}

func setSpanStatus(span trace.Span, code int) {
	span.SetAttributes(httpStatusAttribute.Int(code))
	if code >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(code))
	}
}
