/*
Package builtin registers the plugins bundled with the gateway.

The bundled plugins take precedence over the installed plugin packages
with the same name and version.
*/
package builtin

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/filters/auth"
	"github.com/rgwgateway/rgw/filters/circuit"
	"github.com/rgwgateway/rgw/filters/flowid"
	"github.com/rgwgateway/rgw/filters/header"
	"github.com/rgwgateway/rgw/filters/ratelimit"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/plugins"
	"github.com/rgwgateway/rgw/predicates/cookie"
	headerpredicate "github.com/rgwgateway/rgw/predicates/header"
	"github.com/rgwgateway/rgw/proxy"
)

const (
	Version = "1.0.0"

	InlineContentName = "inline-content"
)

// Options for the bundled plugins.
type Options struct {

	// Transport used by the proxy filter. Defaults to a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper

	// Redis stores the token buckets shared by the gateway instances.
	// Optional.
	Redis redis.UniversalClient

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics

	// TracerProvider creates the spans of the proxy filter. Defaults to
	// the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// Plugin is a bundled plugin.
type Plugin struct {
	Name    string
	Version string
	New     func() filters.Configurable
}

// Plugins returns the bundled plugins.
func Plugins(o Options) []Plugin {
	return []Plugin{
		{proxy.UpstreamName, proxy.UpstreamVersion, proxy.NewUpstream(proxy.UpstreamOptions{
			Transport:      o.Transport,
			Metrics:        o.Metrics,
			TracerProvider: o.TracerProvider,
		})},
		{circuit.Name, circuit.Version, circuit.NewBreaker},
		{circuit.ConsecutiveBreakerName, circuit.Version, circuit.NewConsecutiveBreaker},
		{ratelimit.Name, ratelimit.Version, ratelimit.NewWithOptions(ratelimit.Options{Redis: o.Redis, Metrics: o.Metrics})},
		{header.RequestHeaderName, header.Version, header.NewRequestHeader},
		{header.ResponseHeaderName, header.Version, header.NewResponseHeader},
		{auth.RequireRolesName, auth.Version, auth.NewRequireRoles},
		{flowid.Name, flowid.Version, flowid.New},
		{InlineContentName, Version, NewInlineContent},
		{headerpredicate.Name, headerpredicate.Version, headerpredicate.New},
		{cookie.Name, cookie.Version, cookie.New},
	}
}

// Register adds the bundled plugins to the registry.
func Register(r *plugins.Registry, o Options) {
	for _, p := range Plugins(o) {
		r.Register(p.Name, p.Version, p.New)
	}
}
