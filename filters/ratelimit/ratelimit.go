/*
Package ratelimit provides the token bucket rate limiter filter.

Every filter instance owns its bucket. Requests that find the bucket empty
are rejected with 429 Too Many Requests and a Retry-After header.

When the gateway is configured with Redis, a filter with a group name
uses a bucket shared by every gateway instance and every route
configured with the same group and settings:

	{"burstCapacity": 100, "replenishRate": 10, "group": "orders-api"}
*/
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/filters"
	"github.com/rgwgateway/rgw/metrics"
	"github.com/rgwgateway/rgw/ratelimit"
)

const (
	Name    = "rate-limiter"
	Version = "1.0.0"
)

// Options for the rate limiter filters.
type Options struct {
	// Redis stores the shared buckets. Without it, the group name is
	// ignored and every filter uses a local bucket.
	Redis redis.UniversalClient

	// Metrics defaults to metrics.Void.
	Metrics metrics.Metrics
}

type config struct {
	ratelimit.Settings
	Group string `json:"group"`
}

type filter struct {
	options Options
	config  config
	limiter ratelimit.Limiter
}

// New creates an unconfigured rate limiter filter that always uses a local
// bucket.
func New() filters.Configurable {
	return NewWithOptions(Options{})()
}

// NewWithOptions returns a constructor of rate limiter filters.
func NewWithOptions(o Options) func() filters.Configurable {
	return func() filters.Configurable {
		return &filter{
			options: o,
			config:  config{Settings: ratelimit.Settings{Cost: 1}},
		}
	}
}

func (f *filter) Configure(data []byte) error {
	if err := filters.DecodeConfig(data, &f.config); err != nil {
		return err
	}

	if err := f.config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", filters.ErrInvalidConfig, err)
	}

	switch {
	case f.config.Group == "":
		f.limiter = ratelimit.NewTokenBucket(f.config.Settings)
	case f.options.Redis == nil:
		log.Warnf("Redis not configured, rate limiter group %s uses a local bucket", f.config.Group)
		f.limiter = ratelimit.NewTokenBucket(f.config.Settings)
	default:
		f.limiter = ratelimit.NewClusterBucket(f.options.Redis, f.config.Group, f.config.Settings, f.options.Metrics)
	}

	return nil
}

func (f *filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	ok, retry := f.limiter.Check(ctx.Request().Context())
	if ok {
		return next.Next(ctx)
	}

	w := ctx.ResponseWriter()
	if retry > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	}

	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	return nil
}
