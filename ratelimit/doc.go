/*
Package ratelimit implements the token bucket used by the rate limiter
filter.

A bucket holds at most BurstCapacity tokens, and it is refilled with
ReplenishRate tokens every second. Every admitted call takes Cost tokens.
The refill is computed when a call is checked, there are no timers, and
the computation uses integer arithmetic on the milliseconds elapsed since
the previous check.

Every filter instance has its own bucket:

	{
	  "name": "rate-limiter",
	  "version": "1.0.0",
	  "config": {
	    "burstCapacity": 10,
	    "replenishRate": 1,
	    "cost": 1
	  }
	}

Rejected requests receive 429 Too Many Requests, with a Retry-After header
telling the seconds until enough tokens are available again.

ClusterBucket runs the same computation in Redis, as a Lua script, for the
buckets shared by several gateway instances.
*/
package ratelimit
