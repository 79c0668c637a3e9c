/*
Package routing implements matching of http requests to a continuously
updatable set of gateway routes.

# Request Evaluation

1. The path in the http request is normalized, and the route table yields
the routes whose path pattern matches it.

2. The literal routes, those without variables, that are equal to the
path come first, in the order they were added. Then come the routes with
variables, grouped by the constant prefix of their pattern: the groups in
the order they were first seen, and the routes in a group in the order
they were added.

3. The caller checks the methods and the predicate of the routes, in this
order, and serves the request with the first route that accepts it.

# Path Patterns

The path of a route may contain variables, e.g. /users/{id}/orders. A
variable matches a single, non-empty segment of the request path, and the
matched value is available to the filters as a path parameter. A trailing
slash is significant, /users/ does not match /users.

# Route Table

The table holds immutable snapshots. Every change builds a new snapshot
and publishes it atomically, so lookups never wait for the writers, and
they never see a partially applied change.

# Data Clients

Route definitions are loaded by data clients. The Updater loads the full
set of definitions from every client, merges them by route id, builds the
routes, and replaces the table. Routes whose plugins cannot be loaded or
configured are dropped, and the rest of the routes are still served.
*/
package routing
