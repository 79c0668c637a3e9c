package proxy

import (
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/routing"
)

// instrumentedFilter records the time a filter spends before passing the
// request on, or before returning, when it handles the request on its
// own. The same phase is traced as a child span of the ingress span,
// when the ingress span is recorded.
type instrumentedFilter struct {
	filter  filters.Filter
	name    string
	metrics metrics.Metrics
	tracer  trace.Tracer
}

// continuation resumes the original chain after recording the request
// phase of an instrumented filter.
type continuation struct {
	next   filters.Chain
	record func()
}

func (c continuation) Configure([]byte) error { return nil }

func (c continuation) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	c.record()
	return c.next.Next(ctx)
}

func (f *instrumentedFilter) Configure(config []byte) error {
	return f.filter.Configure(config)
}

func (f *instrumentedFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	start := time.Now()

	var span trace.Span
	if f.tracer != nil {
		_, span = f.tracer.Start(ctx.Request().Context(), f.name, trace.WithTimestamp(start))
		span.SetAttributes(routeIDAttribute.String(ctx.RouteId()))
	}

	var recorded bool
	record := func() {
		if recorded {
			return
		}

		recorded = true
		f.metrics.MeasureFilterRequest(f.name, start)
		if span != nil {
			span.End()
		}
	}

	defer record()
	err := f.filter.Filter(ctx, filters.NewChain([]filters.Filter{continuation{next: next, record: record}}))
	if err != nil && span != nil && !recorded {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func filterName(r *routing.Route, i int) string {
	if r.Definition != nil && i < len(r.Definition.Filters) {
		return r.Definition.Filters[i].Name
	}

	return "unknown"
}

// instrumentedChain returns the filter chain of the route, with the
// filters measured and traced. A nil tracer disables the filter spans.
// Without metrics and tracing, the plain chain is returned.
func instrumentedChain(r *routing.Route, m metrics.Metrics, tracer trace.Tracer) filters.Chain {
	if m == metrics.Void && tracer == nil {
		return r.NewChain()
	}

	instrumented := make([]filters.Filter, len(r.Filters))
	for i, f := range r.Filters {
		instrumented[i] = &instrumentedFilter{filter: f, name: filterName(r, i), metrics: m, tracer: tracer}
	}

	return filters.NewChain(instrumented)
}
