package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActionLimiter throttles per-user actions with a Redis SETNX lock that
// expires after the action's cooldown window. A nil client disables
// throttling so the app still runs without Redis in local development.
type ActionLimiter struct {
	rdb *redis.Client
}

func NewActionLimiter(rdb *redis.Client) *ActionLimiter {
	return &ActionLimiter{rdb: rdb}
}

func (l *ActionLimiter) key(userID uuid.UUID, action string) string {
	return fmt.Sprintf("cooldown:%s:%s", action, userID)
}

// Acquire claims the cooldown slot. It returns false when the user is still
// inside the window from a previous acquisition.
func (l *ActionLimiter) Acquire(ctx context.Context, userID uuid.UUID, action string, window time.Duration) (bool, error) {
	if l.rdb == nil {
		return true, nil
	}

	ok, err := l.rdb.SetNX(ctx, l.key(userID, action), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check for %s: %w", action, err)
	}

	return ok, nil
}

// Remaining reports how long until the user's cooldown expires, for
// surfacing a retry hint in the rejection.
func (l *ActionLimiter) Remaining(ctx context.Context, userID uuid.UUID, action string) (time.Duration, error) {
	if l.rdb == nil {
		return 0, nil
	}
	return l.rdb.TTL(ctx, l.key(userID, action)).Result()
}

// Release drops the cooldown early, used when the throttled action failed
// after the slot was claimed and the user should be free to retry.
func (l *ActionLimiter) Release(ctx context.Context, userID uuid.UUID, action string) error {
	if l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, l.key(userID, action)).Err()
}
