/*
Package metrics implements collection of common performance metrics.

It uses the Prometheus client library:

https://github.com/prometheus/client_golang

The collected metrics include the total request processing time per
route, the time of looking up routes, the time spent with every single
filter, the time waiting for the response from the upstream services, the
upstream errors, and the routes that were rejected when building them
from their definitions.

Options

To enable metrics, the gateway needs to be started with a support listener
address. In this case, an additional http listener is started, where the
current metrics values can be downloaded from the /metrics path.
*/
package metrics
