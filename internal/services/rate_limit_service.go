package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/mwhitfield/authgate/internal/models"
)

// CounterStore is the atomic increment-with-expiry primitive the limiter is
// built on. Implemented by the Redis-backed cache.CounterStore.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Count(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitResult is the outcome of one gate check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimitConfig holds the gate thresholds. Key scopes never overlap: the
// per-IP and global auth gates keep independent counters even for the same
// request.
type RateLimitConfig struct {
	AuthPerIPMax     int
	AuthPerIPWindow  time.Duration
	AuthGlobalMax    int
	AuthGlobalWindow time.Duration

	ProgressiveBaseBackoff time.Duration
	ProgressiveMaxBackoff  time.Duration
	ProgressiveResetAfter  time.Duration
}

// DefaultRateLimitConfig returns the documented defaults: 5 auth failures
// per IP per minute, 1000 globally per minute, and a progressive penalty
// that doubles from one minute up to an hour, resetting after a quiet day.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		AuthPerIPMax:           5,
		AuthPerIPWindow:        time.Minute,
		AuthGlobalMax:          1000,
		AuthGlobalWindow:       time.Minute,
		ProgressiveBaseBackoff: time.Minute,
		ProgressiveMaxBackoff:  time.Hour,
		ProgressiveResetAfter:  24 * time.Hour,
	}
}

// RateLimiter implements counter-based admission control with fixed decay
// windows. The auth gates use increment-on-failure semantics: successful
// logins never consume attempt budget, only failures do.
type RateLimiter struct {
	store  CounterStore
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(store CounterStore, config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func authIPKey(ip string) string { return "auth:ip:" + ip }

const authGlobalKey = "auth:global"

func progressiveKey(subject string) string { return "penalty:" + subject }

// CheckLimit probes a gate without consuming budget. The gate rejects once
// the window's count has reached max.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, max int, window time.Duration) (RateLimitResult, error) {
	count, ttl, err := rl.store.Count(ctx, key, window)
	if err != nil {
		return RateLimitResult{}, err
	}
	return rl.result(count < int64(max), count, max, ttl), nil
}

// Hit consumes one unit of budget on a gate and returns the resulting state.
// The hit that lands exactly on max is still within budget.
func (rl *RateLimiter) Hit(ctx context.Context, key string, max int, window time.Duration) (RateLimitResult, error) {
	count, ttl, err := rl.store.Increment(ctx, key, window)
	if err != nil {
		return RateLimitResult{}, err
	}
	return rl.result(count <= int64(max), count, max, ttl), nil
}

func (rl *RateLimiter) result(allowed bool, count int64, max int, ttl time.Duration) RateLimitResult {
	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := RateLimitResult{
		Allowed:   allowed,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   rl.now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

// CheckAuthGates probes the per-IP and global auth gates. Both must admit
// the request; spent gates surface as a RateLimitError with retry-after.
func (rl *RateLimiter) CheckAuthGates(ctx context.Context, ip string) (RateLimitResult, error) {
	ipRes, err := rl.CheckLimit(ctx, authIPKey(ip), rl.config.AuthPerIPMax, rl.config.AuthPerIPWindow)
	if err != nil {
		return RateLimitResult{}, err
	}
	if !ipRes.Allowed {
		rl.logger.Warn("auth gate rejected request",
			slog.String("gate", "per_ip"),
			slog.String("ip_address", ip))
		return ipRes, nil
	}

	globalRes, err := rl.CheckLimit(ctx, authGlobalKey, rl.config.AuthGlobalMax, rl.config.AuthGlobalWindow)
	if err != nil {
		return RateLimitResult{}, err
	}
	if !globalRes.Allowed {
		rl.logger.Warn("auth gate rejected request", slog.String("gate", "global"))
		return globalRes, nil
	}

	// Report the tighter per-IP budget to the caller.
	return ipRes, nil
}

// RecordAuthFailure consumes budget on BOTH auth gates for a failed attempt.
// The original system incremented the per-IP and global counters together on
// every qualifying failure; that behavior is preserved.
func (rl *RateLimiter) RecordAuthFailure(ctx context.Context, ip string) error {
	if _, err := rl.Hit(ctx, authIPKey(ip), rl.config.AuthPerIPMax, rl.config.AuthPerIPWindow); err != nil {
		return err
	}
	if _, err := rl.Hit(ctx, authGlobalKey, rl.config.AuthGlobalMax, rl.config.AuthGlobalWindow); err != nil {
		return err
	}
	return nil
}

// Escalate bumps a subject's progressive penalty level and returns the
// backoff now in force: base * 2^(level-1), capped. The level itself decays
// via the counter's expiry once the subject stays quiet long enough.
func (rl *RateLimiter) Escalate(ctx context.Context, subject string) (time.Duration, error) {
	level, _, err := rl.store.Increment(ctx, progressiveKey(subject), rl.config.ProgressiveResetAfter)
	if err != nil {
		return 0, err
	}

	backoff := rl.config.ProgressiveBaseBackoff
	for i := int64(1); i < level; i++ {
		backoff *= 2
		if backoff >= rl.config.ProgressiveMaxBackoff {
			backoff = rl.config.ProgressiveMaxBackoff
			break
		}
	}

	rl.logger.Warn("progressive penalty escalated",
		slog.String("subject", subject),
		slog.Int64("level", level),
		slog.Duration("backoff", backoff))

	return backoff, nil
}

// PenaltyLevel reads a subject's current penalty level without escalating.
func (rl *RateLimiter) PenaltyLevel(ctx context.Context, subject string) (int, error) {
	level, _, err := rl.store.Count(ctx, progressiveKey(subject), rl.config.ProgressiveResetAfter)
	if err != nil {
		return 0, err
	}
	return int(level), nil
}

// RateLimitErrorFrom converts a rejected result into the caller-facing error.
func RateLimitErrorFrom(res RateLimitResult) *models.RateLimitError {
	return &models.RateLimitError{
		Limit:      res.Limit,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
}
