package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Allow("10.0.0.1"))
	}
	err := rl.Allow("10.0.0.1")
	require.Error(t, err)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 3, rle.Limit)
	assert.Positive(t, rle.RetryAfter)
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1)
	require.NoError(t, rl.Allow("10.0.0.1"))
	require.NoError(t, rl.Allow("10.0.0.2"))
	require.Error(t, rl.Allow("10.0.0.1"))
}
