package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second}, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "token %d", i)
	}
	assert.False(t, rl.allow())

	clock.Advance(time.Second)
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "refilled token %d", i)
	}
	assert.False(t, rl.allow(), "bucket must not exceed its capacity")
}

func TestRateLimiter_InvalidConfigDefaults(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{}, clock.Now)

	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	clock.Advance(time.Second)
	assert.True(t, rl.allow())
}
