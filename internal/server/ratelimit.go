package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter tracks request rates and daily quotas per client IP.
type RateLimiter struct {
	mu  sync.Mutex
	cfg RateLimitConfig
	now func() time.Time

	clients map[string]*clientUsage
}

type clientUsage struct {
	minuteStart   time.Time
	minuteCount   int
	hourStart     time.Time
	hourCount     int
	day           time.Time
	requestsToday int
	dataToday     int64
	lastSeen      time.Time
}

// Usage is a point-in-time copy of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientUsage),
	}
}

// CheckRateLimit admits or rejects one request of dataSize bytes from
// clientID. Rejected requests are not counted.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(clientID, now)
	u.roll(now)

	if rl.cfg.RequestsPerMinute > 0 && u.minuteCount >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.cfg.RequestsPerMinute,
			RetryAfter: u.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.cfg.RequestsPerHour > 0 && u.hourCount >= rl.cfg.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.cfg.RequestsPerHour,
			RetryAfter: u.hourStart.Add(time.Hour).Sub(now),
		}
	}

	resets := u.day.AddDate(0, 0, 1)
	if rl.cfg.MaxRequestsPerDay > 0 && u.requestsToday >= rl.cfg.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.cfg.MaxRequestsPerDay),
			Used:   int64(u.requestsToday),
			Resets: resets,
		}
	}
	if rl.cfg.MaxDataPerDay > 0 && u.dataToday+dataSize > rl.cfg.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.cfg.MaxDataPerDay,
			Used:   u.dataToday,
			Resets: resets,
		}
	}

	u.minuteCount++
	u.hourCount++
	u.requestsToday++
	u.dataToday += dataSize
	u.lastSeen = now
	return nil
}

func (rl *RateLimiter) usage(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if !ok {
		u = &clientUsage{minuteStart: now, hourStart: now, day: midnight(now), lastSeen: now}
		rl.clients[clientID] = u
	}
	return u
}

// roll starts fresh windows once the current ones have elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minuteStart, u.minuteCount = now, 0
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hourStart, u.hourCount = now, 0
	}
	if today := midnight(now); !today.Equal(u.day) {
		u.day, u.requestsToday, u.dataToday = today, 0, 0
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// GetUsage returns the counters recorded for clientID.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minuteCount,
		RequestsLastHour:   u.hourCount,
		RequestsToday:      u.requestsToday,
		DataToday:          u.dataToday,
	}
}

// Prune forgets clients not seen for longer than idle and returns how
// many were dropped.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	n := 0
	for id, u := range rl.clients {
		if u.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
