package proxy

import (
	stdlibcontext "context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/filtertest"
	"github.com/rgwgateway/rgw/proxy/backendtest"
	"github.com/rgwgateway/rgw/routing"
)

const (
	incomingTraceID  = "4bf92f3577b34da6a3ce929d0e0e4736"
	incomingParentID = "00f067aa0ba902b7"
)

func recordingProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(stdlibcontext.Background()) })

	prop := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prop) })

	return tp, rec
}

func spansByName(rec *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range rec.Ended() {
		spans[s.Name()] = s
	}

	return spans
}

func attributeValue(s sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}

	return attribute.Value{}
}

func TestTracingSpans(t *testing.T) {
	tp, rec := recordingProvider(t)

	backend := backendtest.NewBackendRecorder()
	defer backend.Close()

	tr := http.DefaultTransport.(*http.Transport).Clone()
	defer tr.CloseIdleConnections()

	upstream := NewUpstream(UpstreamOptions{Transport: tr, TracerProvider: tp})().(filters.Filter)
	require.NoError(t, upstream.Configure([]byte(`{"upstreamEndpoint": "`+backend.GetURL()+`/items/{id}"}`)))

	p := testProxy(Params{TracerProvider: tp}, &routing.Route{
		Id:      "r",
		Path:    "/api/{id}",
		Filters: []filters.Filter{&filtertest.Filter{}, upstream},
		Definition: &routing.Definition{
			Id:      "r",
			Path:    "/api/{id}",
			Filters: []routing.PluginRef{{Name: "pass"}, {Name: UpstreamName}},
		},
	})

	req := httptest.NewRequest("GET", "/api/42", nil)
	req.Header.Set("Traceparent", "00-"+incomingTraceID+"-"+incomingParentID+"-01")
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	spans := spansByName(rec)
	require.Len(t, spans, 4)

	ingress := spans[IngressSpanName]
	require.NotNil(t, ingress)
	assert.Equal(t, incomingTraceID, ingress.SpanContext().TraceID().String())
	assert.Equal(t, incomingParentID, ingress.Parent().SpanID().String())
	assert.Equal(t, "r", attributeValue(ingress, routeIDAttribute).AsString())
	assert.Equal(t, int64(http.StatusOK), attributeValue(ingress, httpStatusAttribute).AsInt64())
	assert.NotEqual(t, codes.Error, ingress.Status().Code)

	for _, name := range []string{"pass", UpstreamName, UpstreamSpanName} {
		s := spans[name]
		require.NotNil(t, s, name)
		assert.Equal(t, ingress.SpanContext().SpanID(), s.Parent().SpanID(), name)
		assert.Equal(t, incomingTraceID, s.SpanContext().TraceID().String(), name)
	}

	upstreamSpan := spans[UpstreamSpanName]
	assert.Equal(t, int64(http.StatusOK), attributeValue(upstreamSpan, httpStatusAttribute).AsInt64())

	requests := backend.GetRequests()
	require.Len(t, requests, 1)
	assert.Equal(t,
		"00-"+incomingTraceID+"-"+upstreamSpan.SpanContext().SpanID().String()+"-01",
		requests[0].Header.Get("Traceparent"),
	)
}

func TestTracingFilterError(t *testing.T) {
	tp, rec := recordingProvider(t)

	p := testProxy(Params{TracerProvider: tp}, &routing.Route{
		Id:      "r",
		Path:    "/foo",
		Filters: []filters.Filter{&filtertest.Filter{Err: filters.Status(http.StatusServiceUnavailable, errors.New("unavailable"))}},
		Definition: &routing.Definition{
			Id:      "r",
			Path:    "/foo",
			Filters: []routing.PluginRef{{Name: "failing"}},
		},
	})

	assert.Equal(t, http.StatusServiceUnavailable, serve(p, "GET", "/foo").Code)

	spans := spansByName(rec)
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans["failing"].Status().Code)
	assert.Len(t, spans["failing"].Events(), 1)
	assert.Equal(t, codes.Error, spans[IngressSpanName].Status().Code)
	assert.Equal(t, int64(http.StatusServiceUnavailable), attributeValue(spans[IngressSpanName], httpStatusAttribute).AsInt64())
}

func TestTracingNoRoute(t *testing.T) {
	tp, rec := recordingProvider(t)
	p := testProxy(Params{TracerProvider: tp})

	assert.Equal(t, http.StatusNotFound, serve(p, "GET", "/foo").Code)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, IngressSpanName, spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, int64(http.StatusNotFound), attributeValue(spans[0], httpStatusAttribute).AsInt64())
}

func TestUpstreamSpanOnError(t *testing.T) {
	tp, rec := recordingProvider(t)

	backend := backendtest.NewBackendRecorder()
	url := backend.GetURL()
	backend.Close()

	f := configuredUpstream(t, UpstreamOptions{TracerProvider: tp}, `{"upstreamEndpoint": "`+url+`"}`)
	ctx, _ := upstreamContext(httptest.NewRequest("GET", "/", nil), nil, nil)
	require.Error(t, f.Filter(ctx, filters.Chain{}))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, UpstreamSpanName, spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "r", attributeValue(spans[0], routeIDAttribute).AsString())
	assert.Equal(t, int64(http.StatusBadGateway), attributeValue(spans[0], httpStatusAttribute).AsInt64())
}
