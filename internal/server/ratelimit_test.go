package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, rl.allow(), "token %d should be available", i)
	}
	require.False(t, rl.allow(), "burst exhausted")
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(2, 40*time.Millisecond)

	require.True(t, rl.allow())
	require.True(t, rl.allow())
	require.False(t, rl.allow())

	time.Sleep(60 * time.Millisecond)
	require.True(t, rl.allow(), "tokens should refill over the interval")
}

func TestRateLimiterDefendsBadParameters(t *testing.T) {
	rl := newRateLimiter(0, 0)
	require.True(t, rl.allow())
	require.False(t, rl.allow())
}
