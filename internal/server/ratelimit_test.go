package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a RateLimiter through time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLimiter(cfg RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})

	for range 50 {
		require.NoError(t, rl.CheckRateLimit("user1", 100))
	}
	usage := rl.GetUsage("user1")
	assert.Equal(t, 50, usage.RequestsToday)
	assert.Equal(t, int64(5000), usage.DataToday)
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, clock := newClockedLimiter(RateLimitConfig{RequestsPerMinute: 2})

	require.NoError(t, rl.CheckRateLimit("u", 0))
	clock.advance(20 * time.Second)
	require.NoError(t, rl.CheckRateLimit("u", 0))

	err := rl.CheckRateLimit("u", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	clock.advance(41 * time.Second)
	assert.NoError(t, rl.CheckRateLimit("u", 0))
}

func TestRateLimiter_PerHour(t *testing.T) {
	rl, clock := newClockedLimiter(RateLimitConfig{RequestsPerHour: 3})

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("u", 0))
		clock.advance(5 * time.Minute)
	}

	var rle *RateLimitError
	require.True(t, errors.As(rl.CheckRateLimit("u", 0), &rle))
	assert.Equal(t, "hour", rle.Type)

	clock.advance(time.Hour)
	assert.NoError(t, rl.CheckRateLimit("u", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	rl, clock := newClockedLimiter(RateLimitConfig{MaxRequestsPerDay: 2, MaxDataPerDay: 1000})

	require.NoError(t, rl.CheckRateLimit("u", 600))

	var qe *QuotaExceededError
	require.True(t, errors.As(rl.CheckRateLimit("u", 600), &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(600), qe.Used)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), qe.Resets)

	require.NoError(t, rl.CheckRateLimit("u", 100))
	require.True(t, errors.As(rl.CheckRateLimit("u", 0), &qe))
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Limit)

	clock.advance(14 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("u", 900), "quotas reset at midnight")
}

func TestRateLimiter_RejectedRequestsNotCounted(t *testing.T) {
	rl, _ := newClockedLimiter(RateLimitConfig{RequestsPerMinute: 1})

	require.NoError(t, rl.CheckRateLimit("u", 10))
	require.Error(t, rl.CheckRateLimit("u", 10))
	require.Error(t, rl.CheckRateLimit("u", 10))

	usage := rl.GetUsage("u")
	assert.Equal(t, 1, usage.RequestsLastMinute)
	assert.Equal(t, int64(10), usage.DataToday)
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	rl, _ := newClockedLimiter(RateLimitConfig{RequestsPerMinute: 1})

	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("b", 0))
	assert.Error(t, rl.CheckRateLimit("a", 0))
	assert.Equal(t, Usage{}, rl.GetUsage("nobody"))
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newClockedLimiter(RateLimitConfig{})

	require.NoError(t, rl.CheckRateLimit("old", 0))
	clock.advance(2 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("fresh", 0))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Equal(t, Usage{}, rl.GetUsage("old"))
	assert.Equal(t, 1, rl.GetUsage("fresh").RequestsToday)
}

func TestRateLimitErrors_Error(t *testing.T) {
	err := &RateLimitError{Type: "minute", Limit: 10, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 10, retry after: 30s)", err.Error())

	resets := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	qe := &QuotaExceededError{Type: "data", Limit: 1000, Used: 800, Resets: resets}
	assert.Equal(t, "quota exceeded for data (used: 800, limit: 1000, resets: 2026-01-02T00:00:00Z)", qe.Error())
}
