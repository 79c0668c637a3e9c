/*
Package rgw provides an API gateway with runtime updated routes and
versioned plugins.

The gateway accepts the incoming HTTP requests, and matches them against
the routes provided by the configured data clients: the control plane,
route files and inline routes. Every route has an ordered chain of
filters, created by plugins, that can authenticate, rate limit, transform
or proxy the requests to an upstream service.

Plugins are identified by their name and version. The ones bundled with
the gateway are always available, while the others are installed from a
plugin repository into the plugin home directory, and loaded as Go
plugins.

The routes are refreshed on startup, periodically when a poll interval
is set, and whenever the control plane posts a notification to the
internal route of the gateway:

	POST /__rgw_gateway_internal/notification
	{"apiUpdated": true}

Rate limiters configured with a group name share their token bucket
across the gateway instances when Redis addresses are set in the options.

Requests are traced with OpenTelemetry: an ingress span per request, a
span per filter and one for the upstream request. The spans are exported
when TracesExporter is set, or into the TracerProvider of the options.

The gateway is started with Run, or, when the lifecycle needs to be
controlled, with New and App.Run. The command cmd/rgw provides the
executable with the bundled plugins.
*/
package rgw
