/*
Package circuit implements circuit breakers guarding a protected call
path, typically the rest of a filter chain and the upstream call.

Breaker Types - Sliding Window

The Breaker type counts the outcome of the calls in a time based sliding
window of SlidingWindowSize seconds, bucketed by seconds. It has three
states:

Closed: the calls are executed and their outcomes are recorded. When the
window contains at least MinimumCalls calls, and at least
FailureCountThreshold of them failed, the breaker goes open.

Open: the calls are rejected without executing them, and the window is not
touched. After OpenStateDuration seconds the breaker goes half-open.

HalfOpen: the calls are executed again, on probation. After
HalfOpenStateCalls consecutive successful calls, the breaker goes closed. A
single failure, or HalfOpenStateDuration seconds passing without reaching
the required successes, sets the breaker back to open.

The timed transitions are evaluated when the breaker is accessed, there are
no timers involved.

A call fails when it returns an error, or when the response status it
produced is one of the FailureCodes.

Breaker Types - Consecutive Failures

The ConsecutiveBreaker opens after a configured number of failures in a
row. When open, it rejects the calls during the configured timeout. After
the timeout, it goes half-open, and it closes again after the configured
number of successful requests. It is based on github.com/sony/gobreaker.

Usage

The breakers are created by the circuit breaker filters, one breaker for
every filter instance, so that routes never share the state of their
breakers:

	{
	  "name": "circuit-breaker",
	  "version": "1.0.0",
	  "config": {
	    "failureCodes": [500, 502, 503, 504],
	    "failureCountThreshold": 50,
	    "slidingWindowSize": 60,
	    "minimumCalls": 100,
	    "openStateDuration": 30,
	    "halfOpenStateCalls": 10,
	    "halfOpenStateDuration": 60
	  }
	}

When the breaker is open, the filter responds with 503 Service Unavailable
and the X-Circuit-Open: true header.
*/
package circuit
