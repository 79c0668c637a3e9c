/*
Package filters contains the contracts of the request processing
pipeline of the gateway.

A route holds an ordered list of Filter instances. For every request
matched by the route, the gateway creates a FilterContext (the exchange)
and executes the filters as a Chain: every filter receives the context
and a continuation representing the rest of the chain. A filter proceeds
by calling next.Next(ctx). A filter that returns without calling it
short-circuits the chain, typically after it wrote a response itself,
e.g. the rate limiter rejecting a request.

Filters may replace the request or the response writer of the context
before calling the next filter, e.g. to wrap the response writer and
observe the response status. The downstream filters see the replaced
objects.

Filters and predicates are plugin instances: they are created in an
unconfigured state by the plugin registry, and they receive their
configuration as raw JSON via the Configure method, before the route
using them becomes active. Filter instances are owned by a single route
and they are never shared between routes, but they are shared between the
concurrent requests of the same route, so any mutable state of a filter
needs to be synchronized by the filter itself.
*/
package filters
