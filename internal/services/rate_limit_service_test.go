package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterWithStore(store CounterStore) *RateLimiter {
	return NewRateLimiter(store, DefaultRateLimitConfig(), testLogger())
}

func TestRateLimiter_ProbeConsumesNoBudget(t *testing.T) {
	store := NewFakeCounterStore()
	rl := limiterWithStore(store)
	ctx := context.Background()

	// Probing repeatedly never spends the window.
	for i := 0; i < 20; i++ {
		res, err := rl.CheckAuthGates(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 5, res.Remaining)
	}
}

func TestRateLimiter_PerIPGateClosesAfterMaxFailures(t *testing.T) {
	store := NewFakeCounterStore()
	rl := limiterWithStore(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.RecordAuthFailure(ctx, "10.0.0.1"))
	}

	res, err := rl.CheckAuthGates(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute, "retry-after never exceeds the window")

	// A different IP is unaffected.
	other, err := rl.CheckAuthGates(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestRateLimiter_GateReopensWhenWindowLapses(t *testing.T) {
	store := NewFakeCounterStore()
	rl := limiterWithStore(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.RecordAuthFailure(ctx, "10.0.0.1"))
	}
	res, err := rl.CheckAuthGates(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	store.Advance(61 * time.Second)

	res, err = rl.CheckAuthGates(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
}

func TestRateLimiter_GlobalGateClosesAcrossIPs(t *testing.T) {
	store := NewFakeCounterStore()
	cfg := DefaultRateLimitConfig()
	cfg.AuthPerIPMax = 2000 // keep the per-IP gate out of the way
	rl := NewRateLimiter(store, cfg, testLogger())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, rl.RecordAuthFailure(ctx, "10.0.0.1"))
	}

	// The 1001st request is rejected even from an IP with no failures of
	// its own.
	res, err := rl.CheckAuthGates(ctx, "192.168.7.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1000, res.Limit)
}

func TestRateLimiter_FailureHitsBothGates(t *testing.T) {
	store := NewFakeCounterStore()
	rl := limiterWithStore(store)
	ctx := context.Background()

	require.NoError(t, rl.RecordAuthFailure(ctx, "10.0.0.1"))

	ipCount, _, err := store.Count(ctx, "auth:ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	globalCount, _, err := store.Count(ctx, "auth:global", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int64(1), ipCount)
	assert.Equal(t, int64(1), globalCount)
}

func TestRateLimiter_HitWithinBudgetIsAllowed(t *testing.T) {
	store := NewFakeCounterStore()
	rl := limiterWithStore(store)
	ctx := context.Background()

	// The hit landing exactly on max is still within budget; the next probe
	// is what gets rejected.
	var last RateLimitResult
	for i := 0; i < 5; i++ {
		res, err := rl.Hit(ctx, "auth:ip:10.0.0.9", 5, time.Minute)
		require.NoError(t, err)
		last = res
	}
	assert.True(t, last.Allowed)
	assert.Equal(t, 0, last.Remaining)

	probe, err := rl.CheckLimit(ctx, "auth:ip:10.0.0.9", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, probe.Allowed)
}

func TestRateLimiter_StoreErrorSurfaces(t *testing.T) {
	store := NewFakeCounterStore()
	store.Err = errors.New("connection refused")
	rl := limiterWithStore(store)

	_, err := rl.CheckAuthGates(context.Background(), "10.0.0.1")
	assert.Error(t, err)

	err = rl.RecordAuthFailure(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestRateLimiter_EscalationDoublesAndCaps(t *testing.T) {
	store := NewFakeCounterStore()
	cfg := DefaultRateLimitConfig()
	cfg.ProgressiveBaseBackoff = time.Minute
	cfg.ProgressiveMaxBackoff = 8 * time.Minute
	rl := NewRateLimiter(store, cfg, testLogger())
	ctx := context.Background()

	expected := []time.Duration{
		time.Minute,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		8 * time.Minute, // capped
		8 * time.Minute,
	}
	for i, want := range expected {
		backoff, err := rl.Escalate(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, backoff, "escalation %d", i+1)
	}

	level, err := rl.PenaltyLevel(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, len(expected), level)
}

func TestRateLimiter_PenaltyLevelZeroForUnknownSubject(t *testing.T) {
	rl := limiterWithStore(NewFakeCounterStore())

	level, err := rl.PenaltyLevel(context.Background(), "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, 0, level)
}

func TestRateLimitErrorFrom(t *testing.T) {
	res := RateLimitResult{Allowed: false, Limit: 5, Remaining: 0, RetryAfter: 42 * time.Second}
	rlErr := RateLimitErrorFrom(res)

	assert.Equal(t, 5, rlErr.Limit)
	assert.Equal(t, 42*time.Second, rlErr.RetryAfter)
}
