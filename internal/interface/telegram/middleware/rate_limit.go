// Package middleware contains the cross-cutting concerns applied to every
// Telegram update: rate limiting, admin checks, panic recovery and metrics.
package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-user token buckets. Users who keep hitting the limit are banned for a
// while; the admin is never limited.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per user.
	RequestsPerMinute int

	// BurstSize is the bucket size.
	BurstSize int

	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration

	// IdleTimeout is how long an unused bucket is kept.
	IdleTimeout time.Duration

	// BanThreshold is the number of rejected requests, within BanDuration,
	// that triggers a temporary ban. Zero disables bans.
	BanThreshold int
	BanDuration  time.Duration

	// Whitelist holds users exempt from limiting.
	Whitelist []int64
}

// DefaultRateLimitConfig returns the default configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
		BanThreshold:      20,
		BanDuration:       10 * time.Minute,
	}
}

// RateLimitResult is the outcome of a check.
type RateLimitResult struct {
	Allowed bool

	// RetryAfter is how long the user should wait. Zero when allowed.
	RetryAfter time.Duration

	// IsBanned reports a temporary ban.
	IsBanned bool

	// FirstRejection is true for the first rejected request after an
	// allowed one, so callers notify the user once per streak.
	FirstRejection bool
}

type bucket struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	violations  int
	windowStart time.Time
	bannedUntil time.Time
	rejecting   bool
}

// RateLimiter limits requests per Telegram user.
type RateLimiter struct {
	config    RateLimitConfig
	limit     rate.Limit
	whitelist map[int64]struct{}

	mu      sync.Mutex
	buckets map[int64]*bucket
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. Call Run to start the cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}

	whitelist := make(map[int64]struct{}, len(config.Whitelist))
	for _, id := range config.Whitelist {
		whitelist[id] = struct{}{}
	}

	return &RateLimiter{
		config:    config,
		limit:     rate.Every(time.Minute / time.Duration(config.RequestsPerMinute)),
		whitelist: whitelist,
		buckets:   make(map[int64]*bucket),
		now:       time.Now,
	}
}

// Check consumes one token for the user.
func (rl *RateLimiter) Check(telegramID int64) RateLimitResult {
	if _, ok := rl.whitelist[telegramID]; ok {
		return RateLimitResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[telegramID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.config.BurstSize)}
		rl.buckets[telegramID] = b
	}
	b.lastSeen = now

	if now.Before(b.bannedUntil) {
		return RateLimitResult{RetryAfter: b.bannedUntil.Sub(now), IsBanned: true}
	}

	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		b.rejecting = false
		return RateLimitResult{Allowed: true}
	}

	// A rejected request must not consume the future token.
	r.CancelAt(now)
	first := !b.rejecting
	b.rejecting = true

	if rl.recordViolation(b, now) {
		return RateLimitResult{RetryAfter: rl.config.BanDuration, IsBanned: true, FirstRejection: first}
	}
	return RateLimitResult{RetryAfter: delay, FirstRejection: first}
}

// recordViolation counts a rejection and reports whether it triggered a ban.
func (rl *RateLimiter) recordViolation(b *bucket, now time.Time) bool {
	if rl.config.BanThreshold <= 0 {
		return false
	}
	if now.Sub(b.windowStart) > rl.config.BanDuration {
		b.windowStart = now
		b.violations = 0
	}
	b.violations++
	if b.violations < rl.config.BanThreshold {
		return false
	}
	b.bannedUntil = now.Add(rl.config.BanDuration)
	b.violations = 0
	return true
}

// Reset forgets the user's bucket and ban.
func (rl *RateLimiter) Reset(telegramID int64) {
	rl.mu.Lock()
	delete(rl.buckets, telegramID)
	rl.mu.Unlock()
}

// Run drops idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.config.IdleTimeout && !now.Before(b.bannedUntil) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}
