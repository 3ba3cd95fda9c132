package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingDelay_WaitReachesBaseDelay(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 20, RandomDelayMs: 0})

	start := time.Now()
	td.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimingDelay_WaitFromAccountsForElapsedWork(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 30, RandomDelayMs: 0})

	start := time.Now().Add(-25 * time.Millisecond) // 25ms of work already done
	td.WaitFrom(start)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 60*time.Millisecond, "must not stack the full delay on top of elapsed work")
}

func TestTimingDelay_WaitFromSkipsWhenTargetPassed(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 10, RandomDelayMs: 0})

	start := time.Now().Add(-50 * time.Millisecond)
	before := time.Now()
	td.WaitFrom(start)
	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestTimingDelay_ZeroConfigIsNoOp(t *testing.T) {
	td := NewTimingDelay(TimingConfig{})

	before := time.Now()
	td.Wait()
	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestCryptoRandIntn_Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := cryptoRandIntn(100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 100)
	}

	v, err := cryptoRandIntn(0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
