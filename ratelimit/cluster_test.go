package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgwgateway/rgw/metrics/metricstest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func checked(ctx context.Context, b Limiter, n int) int {
	var count int
	for i := 0; i < n; i++ {
		if ok, _ := b.Check(ctx); ok {
			count++
		}
	}

	return count
}

func TestClusterBurstThenRefill(t *testing.T) {
	_, client := newTestRedis(t)
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	b := newClusterBucket(client, "api", Settings{BurstCapacity: 10, ReplenishRate: 1, Cost: 1}, nil, c.Now)
	ctx := context.Background()

	assert.Equal(t, 10, checked(ctx, b, 10))

	ok, retry := b.Check(ctx)
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	c.advance(5 * time.Second)
	assert.Equal(t, 5, checked(ctx, b, 20))

	left, err := b.Left(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)
}

func TestClusterBucketIsShared(t *testing.T) {
	_, client := newTestRedis(t)
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	s := Settings{BurstCapacity: 4, ReplenishRate: 0, Cost: 1}
	ctx := context.Background()

	b1 := newClusterBucket(client, "api", s, nil, c.Now)
	b2 := newClusterBucket(client, "api", s, nil, c.Now)
	other := newClusterBucket(client, "other", s, nil, c.Now)

	assert.Equal(t, 2, checked(ctx, b1, 2))
	assert.Equal(t, 2, checked(ctx, b2, 5))
	assert.Equal(t, 4, checked(ctx, other, 5))
}

func TestClusterLeftBeforeFirstCheck(t *testing.T) {
	_, client := newTestRedis(t)
	b := NewClusterBucket(client, "api", Settings{BurstCapacity: 3, ReplenishRate: 1, Cost: 1}, nil)

	left, err := b.Left(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), left)
}

func TestClusterBucketExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewClusterBucket(client, "api", Settings{BurstCapacity: 2, ReplenishRate: 1, Cost: 1}, nil)

	ok, _ := b.Check(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, mr.TTL(b.key))
}

func TestClusterAdmitsWhenRedisFails(t *testing.T) {
	mr, client := newTestRedis(t)
	m := &metricstest.MockMetrics{}
	b := NewClusterBucket(client, "api", Settings{BurstCapacity: 1, Cost: 1}, m)

	mr.Close()
	assert.Equal(t, 3, checked(context.Background(), b, 3))

	errors, _ := m.Counter(clusterMetricErrors)
	assert.Equal(t, int64(3), errors)
}
