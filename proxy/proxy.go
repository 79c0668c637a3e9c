package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/rgwgateway/rgw/environment"
	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/logging"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/pathmatch"
	"github.com/rgwgateway/rgw/routing"
)

const unknownRouteID = "_unknownroute_"

type routeLookupError string

func (e routeLookupError) Error() string { return string(e) }

const errRouteLookupFailed = routeLookupError("route lookup failed")

var errFilterPanic = errors.New("filter panic")

// Params configure the gateway handler.
type Params struct {

	// Table provides the routes. Required.
	Table *routing.Table

	// Environment provides the environment variables of the routes
	// with an OrgId. Defaults to environment.Void.
	Environment environment.Provider

	// Notifier is triggered by the route change notifications of the
	// control plane. Optional.
	Notifier Notifier

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics

	// AccessLogDisabled disables the access log for every route.
	AccessLogDisabled bool

	// TracerProvider creates the ingress and filter spans. Defaults
	// to the global provider of OpenTelemetry.
	TracerProvider trace.TracerProvider
}

// Proxy is the HTTP handler of the gateway.
type Proxy struct {
	table             *routing.Table
	environment       environment.Provider
	notifier          Notifier
	metrics           metrics.Metrics
	accessLogDisabled bool
	log               *log.Logger
	tracer            trace.Tracer
}

// New returns an initialized Proxy.
func New(p Params) *Proxy {
	if p.Table == nil {
		p.Table = routing.NewTable()
	}

	if p.Environment == nil {
		p.Environment = environment.Void{}
	}

	if p.Metrics == nil {
		p.Metrics = metrics.Void
	}

	return &Proxy{
		table:             p.Table,
		environment:       p.Environment,
		notifier:          p.Notifier,
		metrics:           p.Metrics,
		accessLogDisabled: p.AccessLogDisabled,
		log:               log.StandardLogger(),
		tracer:            newTracer(p.TracerProvider),
	}
}

var caughtPanic atomic.Bool

// tryCatch executes function `p` and `onErr` if `p` panics
// onErr will receive a stack trace string of the first panic
// further panics are ignored for efficiency reasons
func tryCatch(p func(), onErr func(err interface{}, stack string)) {
	defer func() {
		if err := recover(); err != nil {
			s := ""
			if caughtPanic.CompareAndSwap(false, true) {
				buf := make([]byte, 1024)
				l := runtime.Stack(buf, false)
				s = string(buf[:l])
			}

			onErr(err, s)
		}
	}()

	p()
}

func (p *Proxy) lookupRoute(ctx *context, path string) (*routing.Route, map[string]string) {
	for rt, params := range p.table.Match(path) {
		// predicates may depend on the path params
		ctx.pathParams = params
		if rt.Accepts(ctx) {
			return rt, params
		}
	}

	ctx.pathParams = nil
	return nil, nil
}

func (p *Proxy) do(ctx *context, path string, span trace.Span) error {
	lookupStart := time.Now()
	rt, params := p.lookupRoute(ctx, path)
	p.metrics.MeasureRouteLookup(lookupStart)
	if rt == nil {
		p.metrics.IncRoutingFailures()
		ctx.logger.Debugf("could not find a route for %v", ctx.request.URL)
		return errRouteLookupFailed
	}

	ctx.applyRoute(rt, params)
	ctx.stateBag[filters.RouteIdKey] = rt.Id
	span.SetAttributes(routeIDAttribute.String(rt.Id))

	if rt.OrgId != "" {
		env, err := p.environment.GetEnvForOrg(ctx.request.Context(), rt.OrgId)
		if err != nil {
			return filters.Status(http.StatusServiceUnavailable, fmt.Errorf("failed to get the environment of %s: %w", rt.OrgId, err))
		}

		ctx.environment = env
	}

	var filterTracer trace.Tracer
	if span.IsRecording() {
		filterTracer = p.tracer
	}

	var err error
	tryCatch(func() {
		err = instrumentedChain(rt, p.metrics, filterTracer).Next(ctx)
	}, func(perr interface{}, stack string) {
		ctx.logger.Errorf("error while processing filters: %v (%s)", perr, stack)
		err = errFilterPanic
	})

	return err
}

// send a premature error response
func (p *Proxy) sendError(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}

func (p *Proxy) errorResponse(ctx *context, lw *logging.LoggingWriter, err error) {
	id := ctx.routeId()
	if id == "" {
		id = unknownRouteID
	}

	if lw.Written() {
		ctx.logger.Errorf("error after the response was sent, route %s: %v", id, err)
		return
	}

	code := http.StatusInternalServerError
	var serr *filters.StatusError
	switch {
	case err == errRouteLookupFailed:
		code = http.StatusNotFound
	case errors.As(err, &serr):
		code = serr.Code
		if code >= http.StatusInternalServerError {
			ctx.logger.Errorf("error while proxying, route %s, status code %d: %v", id, code, err)
		}
	case err == errFilterPanic:
	default:
		ctx.logger.Errorf("error while proxying, route %s, status code %d: %v", id, code, err)
	}

	p.sendError(lw, code)
}

func accessLogEnabled(conf []byte) bool {
	if len(conf) == 0 {
		return true
	}

	enabled := gjson.GetBytes(conf, "enabled")
	return !enabled.Exists() || enabled.Bool()
}

func (p *Proxy) logAccess(ctx *context, r *http.Request, lw *logging.LoggingWriter) {
	if p.accessLogDisabled {
		return
	}

	var additional map[string]interface{}
	if ctx.route != nil {
		if !accessLogEnabled(ctx.route.AccessLogConf) {
			return
		}

		if ctx.route.OrgId != "" {
			additional = map[string]interface{}{"org-id": ctx.route.OrgId}
		}
	}

	if tags, ok := ctx.stateBag[filters.AuditTagsKey].(map[string]string); ok {
		if additional == nil {
			additional = make(map[string]interface{}, len(tags))
		}

		for k, v := range tags {
			additional[k] = v
		}
	}

	flowId, _ := ctx.stateBag[filters.FlowIdKey].(string)
	logging.LogAccess(&logging.AccessEntry{
		Request:      r,
		ResponseSize: lw.GetBytes(),
		StatusCode:   lw.GetCode(),
		RequestTime:  ctx.startServe,
		Duration:     time.Since(ctx.startServe),
		RouteId:      ctx.routeId(),
		FlowId:       flowId,
	}, additional)
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)
	r, span := startIngressSpan(p.tracer, r)
	defer span.End()

	ctx := newContext(lw, r, p.log.WithField("path", r.URL.Path))
	defer p.logAccess(ctx, r, lw)

	path := pathmatch.Normalize(r.URL.Path)
	if isInternal(path) {
		setSpanStatus(span, p.serveInternal(lw, r, path))
		return
	}

	if err := p.do(ctx, path, span); err != nil {
		p.errorResponse(ctx, lw, err)
		if lw.GetCode() >= http.StatusInternalServerError {
			span.RecordError(err)
		}
	} else if !lw.Written() {
		// no filter responded
		p.sendError(lw, http.StatusNotFound)
	}

	setSpanStatus(span, lw.GetCode())

	id := ctx.routeId()
	if id == "" {
		id = unknownRouteID
	}

	p.metrics.MeasureServe(id, r.Method, lw.GetCode(), ctx.startServe)
}
