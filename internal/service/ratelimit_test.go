package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestActionLimiterDisabledWithoutRedis(t *testing.T) {
	limiter := NewActionLimiter(nil)
	userID := uuid.New()
	ctx := context.Background()

	// Without Redis every acquisition succeeds and nothing is tracked.
	for i := 0; i < 3; i++ {
		ok, err := limiter.Acquire(ctx, userID, actionCreateLeague, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	wait, err := limiter.Remaining(ctx, userID, actionCreateLeague)
	require.NoError(t, err)
	require.Zero(t, wait)

	require.NoError(t, limiter.Release(ctx, userID, actionCreateLeague))
}
