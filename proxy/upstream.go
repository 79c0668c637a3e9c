package proxy

import (
	stdlibcontext "context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/pathmatch"
	"go.opentelemetry.io/otel/trace"
)

const (
	UpstreamName    = "proxy"
	UpstreamVersion = "1.0.0"

	proxyBufferSize = 8192
)

var hopHeaders = map[string]bool{
	"Te":                  true,
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// UpstreamOptions are shared by the proxy filter instances.
type UpstreamOptions struct {

	// Transport executes the upstream requests. Defaults to a clone
	// of http.DefaultTransport.
	Transport http.RoundTripper

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics

	// TracerProvider creates the upstream spans. Defaults to the global
	// OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

type upstreamConfig struct {
	UpstreamEndpoint string  `json:"upstreamEndpoint"`
	Timeout          float64 `json:"timeout"`
}

type upstream struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
	metrics   metrics.Metrics
	tracer    trace.Tracer
}

// NewUpstream returns the constructor of the proxy filter. Its instances
// forward the requests to the configured endpoint, and stream back the
// response. The proxy filter never calls the rest of the chain.
//
// Configuration:
//
//	{"upstreamEndpoint": "http://{service}.internal/api/{id}", "timeout": 3.5}
//
// The placeholders of the endpoint are expanded from the path params and
// the environment of the route. The timeout is in seconds, and zero or
// less means no timeout.
func NewUpstream(o UpstreamOptions) func() filters.Configurable {
	if o.Transport == nil {
		o.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void
	}

	tracer := newTracer(o.TracerProvider)
	return func() filters.Configurable {
		return &upstream{transport: o.Transport, metrics: o.Metrics, tracer: tracer}
	}
}

func (u *upstream) Configure(raw []byte) error {
	var c upstreamConfig
	if err := filters.DecodeConfig(raw, &c); err != nil {
		return err
	}

	if c.UpstreamEndpoint == "" {
		return filters.InvalidConfigf("missing upstreamEndpoint")
	}

	lower := strings.ToLower(c.UpstreamEndpoint)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return filters.InvalidConfigf("upstreamEndpoint must be an http or https URL: %q", c.UpstreamEndpoint)
	}

	u.endpoint = c.UpstreamEndpoint
	if c.Timeout > 0 {
		u.timeout = time.Duration(c.Timeout * float64(time.Second))
	}

	return nil
}

func (u *upstream) target(ctx filters.FilterContext) (*url.URL, error) {
	endpoint := pathmatch.Expand(u.endpoint, ctx.PathParams(), ctx.Environment())
	t, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream endpoint %q: %w", endpoint, err)
	}

	if t.Host == "" {
		return nil, fmt.Errorf("invalid upstream endpoint %q: missing host", endpoint)
	}

	if q := ctx.Request().URL.RawQuery; q != "" {
		if t.RawQuery == "" {
			t.RawQuery = q
		} else {
			t.RawQuery += "&" + q
		}
	}

	return t, nil
}

func copyHeaderExcluding(to, from http.Header, excludeHeaders map[string]bool) {
	// headers named by the Connection header are hop-by-hop, too
	var connection []string
	for _, v := range from.Values("Connection") {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				connection = append(connection, http.CanonicalHeaderKey(h))
			}
		}
	}

	for k, v := range from {
		// The http package converts header names to their canonical version.
		// Meaning that the lookup below will be done using the canonical version of the header.
		if excludeHeaders[k] {
			continue
		}

		excluded := false
		for _, c := range connection {
			if c == k {
				excluded = true
				break
			}
		}

		if !excluded {
			to[k] = append([]string(nil), v...)
		}
	}
}

func remoteHost(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}

	return r.RemoteAddr
}

// creates an outgoing http request to be forwarded to the upstream
// endpoint based on the augmented incoming request
func mapRequest(ctx stdlibcontext.Context, r *http.Request, target *url.URL) (*http.Request, error) {
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	rr, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	rr.ContentLength = r.ContentLength
	rr.Header = make(http.Header, len(r.Header))
	copyHeaderExcluding(rr.Header, r.Header, hopHeaders)
	rr.Header.Del("Host")

	if h := remoteHost(r); h != "" {
		if prior := rr.Header.Get("X-Forwarded-For"); prior != "" {
			h = prior + ", " + h
		}

		rr.Header.Set("X-Forwarded-For", h)
	}

	// If there is basic auth configured in the URL we add them as headers
	if target.User != nil {
		rr.URL.User = nil
		p, _ := target.User.Password()
		rr.SetBasicAuth(target.User.Username(), p)
	}

	return rr, nil
}

// copies a stream with flushing on every successful read operation
// (similar to io.Copy but with flushing)
func copyStream(to http.ResponseWriter, from io.Reader) error {
	rc := http.NewResponseController(to)
	b := make([]byte, proxyBufferSize)

	for {
		l, rerr := from.Read(b)
		if rerr != nil && rerr != io.EOF {
			return rerr
		}

		if l > 0 {
			_, werr := to.Write(b[:l])
			if werr != nil {
				return werr
			}

			rc.Flush()
		}

		if rerr == io.EOF {
			return nil
		}
	}
}

func (u *upstream) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	target, err := u.target(ctx)
	if err != nil {
		return filters.Status(http.StatusBadGateway, err)
	}

	r := ctx.Request()
	reqCtx := r.Context()
	if u.timeout > 0 {
		var cancel stdlibcontext.CancelFunc
		reqCtx, cancel = stdlibcontext.WithTimeout(reqCtx, u.timeout)
		defer cancel()
	}

	req, err := mapRequest(reqCtx, r, target)
	if err != nil {
		return filters.Status(http.StatusBadGateway, err)
	}

	span := startUpstreamSpan(reqCtx, u.tracer, req, ctx.RouteId())
	defer span.End()

	start := time.Now()
	rsp, err := u.transport.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		u.metrics.IncErrorsBackend(ctx.RouteId())
		if errors.Is(reqCtx.Err(), stdlibcontext.DeadlineExceeded) {
			setSpanStatus(span, http.StatusGatewayTimeout)
			return filters.Status(http.StatusGatewayTimeout, fmt.Errorf("upstream timeout after %v: %w", u.timeout, err))
		}

		setSpanStatus(span, http.StatusBadGateway)
		return filters.Status(http.StatusBadGateway, err)
	}

	defer rsp.Body.Close()
	u.metrics.MeasureBackend(ctx.RouteId(), start)
	setSpanStatus(span, rsp.StatusCode)

	w := ctx.ResponseWriter()
	copyHeaderExcluding(w.Header(), rsp.Header, hopHeaders)
	w.WriteHeader(rsp.StatusCode)
	if err := copyStream(w, rsp.Body); err != nil {
		span.RecordError(err)
		u.metrics.IncErrorsBackend(ctx.RouteId())
		return fmt.Errorf("error while copying the response stream: %w", err)
	}

	return nil
}
