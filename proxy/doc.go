/*
Package proxy implements the HTTP handler of the gateway, and the
terminal filter forwarding the requests to the upstream services.

# Request Mechanism

1. internal route:

Requests to the paths under /__rgw_gateway_internal are handled by the
gateway itself, before the route lookup. The internal route cannot be
removed or overridden by the route definitions.

2. route matching:

The incoming request path is matched against the route table, see the
routing package. From the routes matching the path, the first one whose
methods and predicate accept the request is used. When no route accepts
the request, the gateway responds with 404.

3. filters:

The filters of the matched route are executed in the order they are
defined. The filters share a context object, that provides the incoming
request, the response writer, the path parameters derived from the
request path, the environment variables of the route's organization and a
free-form state bag. The filters may modify the request, wrap the
response writer, or pass data to each other using the state bag.

Any filter can respond on its own and stop the chain, without calling the
rest of the filters.

4. upstream request:

The proxy filter, typically the last one of a route, maps the request to
the upstream endpoint, executes it and streams the response back to the
client.

5. errors:

When a filter returns an error, and nothing was written to the client
yet, the gateway responds with the status of a filters.StatusError, or
with 500 for any other error, without exposing the error. Panics of the
filters are handled the same way as errors.

# Access Log

After every request, the gateway logs an access log entry, unless the
access log was disabled, or the route configuration contains:

	"accessLogConf": {"enabled": false}
*/
package proxy
