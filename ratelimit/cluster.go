package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rgwgateway/rgw/metrics"
)

const (
	clusterKeyPrefix     = "rgw.tb."
	clusterMetricPrefix  = "ratelimit.redis."
	clusterMetricLatency = clusterMetricPrefix + "latency"
	clusterMetricErrors  = clusterMetricPrefix + "errors"
)

// The script runs atomically on the Redis server, so the refill and the
// take are one critical section across all the gateway instances.
//
//go:embed tokenbucket.lua
var tokenBucketScript string

var script = redis.NewScript(tokenBucketScript)

// Limiter admits or rejects calls. When a call is rejected, the returned
// duration tells how long to wait before retrying, or zero when unknown.
type Limiter interface {
	Check(ctx context.Context) (bool, time.Duration)
}

// ClusterBucket is a token bucket stored in Redis, shared by the gateway
// instances using the same group name and settings.
//
// When Redis cannot be reached, the calls are admitted.
type ClusterBucket struct {
	settings Settings
	key      string
	client   redis.UniversalClient
	metrics  metrics.Metrics
	now      func() time.Time
}

// NewClusterBucket creates a bucket identified by the group name. Groups
// configured with different settings get different buckets.
func NewClusterBucket(client redis.UniversalClient, group string, s Settings, m metrics.Metrics) *ClusterBucket {
	return newClusterBucket(client, group, s, m, time.Now)
}

func newClusterBucket(client redis.UniversalClient, group string, s Settings, m metrics.Metrics, now func() time.Time) *ClusterBucket {
	if m == nil {
		m = metrics.Void
	}

	return &ClusterBucket{
		settings: s,
		key:      clusterKey(group, s),
		client:   client,
		metrics:  m,
		now:      now,
	}
}

func clusterKey(group string, s Settings) string {
	id := fmt.Sprintf("%s-%d-%d-%d", group, s.BurstCapacity, s.ReplenishRate, s.Cost)
	return fmt.Sprintf("%s%x", clusterKeyPrefix, xxhash.Sum64String(id))
}

func (b *ClusterBucket) take(ctx context.Context) (bool, int64, error) {
	r, err := script.Run(ctx, b.client,
		[]string{b.key},
		b.settings.BurstCapacity,
		b.settings.ReplenishRate,
		b.settings.Cost,
		b.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	if len(r) != 2 {
		return false, 0, fmt.Errorf("unexpected token bucket script result: %v", r)
	}

	return r[0] == 1, r[1], nil
}

// Check takes the cost of one call from the shared bucket.
func (b *ClusterBucket) Check(ctx context.Context) (bool, time.Duration) {
	defer b.metrics.MeasureSince(clusterMetricLatency, time.Now())

	ok, left, err := b.take(ctx)
	if err != nil {
		b.metrics.IncCounter(clusterMetricErrors)
		log.Errorf("Failed to check the shared token bucket %s, admitting the call: %v", b.key, err)
		return true, 0
	}

	if ok {
		return true, 0
	}

	return false, retryAfter(b.settings, left)
}

// Left returns the tokens left in the shared bucket after the last check.
func (b *ClusterBucket) Left(ctx context.Context) (int64, error) {
	v, err := b.client.HGet(ctx, b.key, "left").Int64()
	if err == redis.Nil {
		return b.settings.BurstCapacity, nil
	}

	return v, err
}
