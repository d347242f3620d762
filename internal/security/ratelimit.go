package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	// KindCommand limits commands per sender.
	KindCommand = "command"
	// KindAuth limits gateway authentication attempts per remote address.
	KindAuth = "auth"
)

// RateLimitConfig holds configurable rate limits. Zero fields take defaults.
type RateLimitConfig struct {
	CommandsPerMin int `yaml:"commands_per_min"`
	AuthPerMin     int `yaml:"auth_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.CommandsPerMin <= 0 {
		c.CommandsPerMin = 20
	}
	if c.AuthPerMin <= 0 {
		c.AuthPerMin = 10
	}
	return c
}

// sweepEvery is the number of Allow calls between sweeps of idle buckets.
const sweepEvery = 1024

// RateLimiter implements sliding-window limits per (kind, key).
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]limit
	buckets map[bucketKey]*bucket
	calls   int
	now     func() time.Time
}

type limit struct {
	window time.Duration
	events int
}

type bucketKey struct {
	kind, key string
}

type bucket struct {
	window time.Duration
	events []time.Time
}

// NewRateLimiter creates a rate limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	return &RateLimiter{
		limits: map[string]limit{
			KindCommand: {window: time.Minute, events: cfg.CommandsPerMin},
			KindAuth:    {window: time.Minute, events: cfg.AuthPerMin},
		},
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// SetConfig replaces the limits. Events already recorded still count
// against the new limits.
func (rl *RateLimiter) SetConfig(cfg RateLimitConfig) {
	cfg = cfg.withDefaults()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[KindCommand] = limit{window: time.Minute, events: cfg.CommandsPerMin}
	rl.limits[KindAuth] = limit{window: time.Minute, events: cfg.AuthPerMin}
}

// Allow records one event of kind for key. It returns ErrRateLimited when
// the key is over its limit. Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	rl.calls++
	if rl.calls%sweepEvery == 0 {
		rl.sweep(now)
	}

	bk := bucketKey{kind: kind, key: key}
	b, ok := rl.buckets[bk]
	if !ok {
		b = &bucket{window: lim.window}
		rl.buckets[bk] = b
	}
	b.evict(now)

	if len(b.events) >= lim.events {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// sweep drops buckets with no event left in their window.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		b.evict(now)
		if len(b.events) == 0 {
			delete(rl.buckets, k)
		}
	}
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
