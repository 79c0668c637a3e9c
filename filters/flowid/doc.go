/*
Package flowid implements a filter used for identifying incoming requests
through their complete lifecycle, for logging, monitoring, or else.

Flow Ids let you correlate the gateway logs for a given request against the
upstream application logs for that same request. If the upstream
application makes other requests to other services, it can pass the same
Flow Id so that all of those logs can be correlated.

How It Works

The filter generates a unique Flow Id for every request, and passes it to
the upstream in the X-Flow-Id header. The flow id is also stored in the
state bag, and the gateway writes it to the access log.

The configuration fields are optional:

	{
	  "reuse": true,
	  "generator": "uuid",
	  "length": 16,
	  "response": true
	}

When reuse is set, a valid X-Flow-Id header of the incoming request is
kept. The generator is one of "standard", random strings of the given
length from a 64 character alphabet, "uuid", random UUIDs, or "ulid",
lexically sortable identifiers. When response is set, the flow id is also
sent to the client in the response header.
*/
package flowid
