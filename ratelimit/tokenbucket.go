package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Settings of a token bucket.
type Settings struct {
	BurstCapacity int64 `json:"burstCapacity"`
	ReplenishRate int64 `json:"replenishRate"`
	Cost          int64 `json:"cost"`
}

// Validate checks that the bucket can admit at least one call.
func (s Settings) Validate() error {
	switch {
	case s.BurstCapacity <= 0:
		return fmt.Errorf("invalid burst capacity: %d", s.BurstCapacity)
	case s.ReplenishRate < 0:
		return fmt.Errorf("invalid replenish rate: %d", s.ReplenishRate)
	case s.Cost <= 0:
		return fmt.Errorf("invalid cost: %d", s.Cost)
	case s.Cost > s.BurstCapacity:
		return fmt.Errorf("cost %d exceeds burst capacity %d", s.Cost, s.BurstCapacity)
	}

	return nil
}

// TokenBucket admits calls while it has enough tokens left. It is safe
// for concurrent use.
type TokenBucket struct {
	settings Settings
	now      func() time.Time

	mu           sync.Mutex
	left         int64
	lastUpdateMs int64
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(s Settings) *TokenBucket {
	return newTokenBucket(s, time.Now)
}

func newTokenBucket(s Settings, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		settings:     s,
		now:          now,
		left:         s.BurstCapacity,
		lastUpdateMs: now().UnixMilli(),
	}
}

// only called while locked
func (b *TokenBucket) refill() {
	now := b.now().UnixMilli()
	elapsed := now - b.lastUpdateMs
	if elapsed < 0 {
		elapsed = 0
	}

	b.left = min(b.settings.BurstCapacity, b.left+b.settings.ReplenishRate*elapsed/1000)
	b.lastUpdateMs = now
}

// Allow takes the cost of one call from the bucket, if there are enough
// tokens left.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.left < b.settings.Cost {
		return false
	}

	b.left -= b.settings.Cost
	return true
}

// RetryAfter returns the time to wait until the next call could be
// admitted. A bucket that is never refilled returns 0.
func (b *TokenBucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return retryAfter(b.settings, b.left)
}

// Check implements Limiter.
func (b *TokenBucket) Check(context.Context) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.left < b.settings.Cost {
		return false, retryAfter(b.settings, b.left)
	}

	b.left -= b.settings.Cost
	return true, 0
}

func retryAfter(s Settings, left int64) time.Duration {
	missing := s.Cost - left
	if missing <= 0 || s.ReplenishRate <= 0 {
		return 0
	}

	seconds := (missing + s.ReplenishRate - 1) / s.ReplenishRate
	return time.Duration(seconds) * time.Second
}

// Left returns the tokens currently in the bucket.
func (b *TokenBucket) Left() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.left
}
