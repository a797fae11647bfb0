// Package ratelimit throttles login attempts per origin key with a fixed
// window counter kept in the shared store.
//
// The counter is bumped with INCR and given its TTL only when INCR returned
// 1. The two calls are separate, so for a short moment a fresh counter has
// no expiry. The follow-up calls ignore cancellation of the request context,
// and if setting the expiry still fails the counter is deleted rather than
// left to live forever.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go-auth-service/internal/kvstore"
	"go-auth-service/internal/model"
)

const (
	MaxLoginAttempts = 5
	LoginWindow      = 60 * time.Second

	loginKeyPrefix = "login:ip:"
)

type LoginLimiter struct {
	store kvstore.Store
}

func NewLoginLimiter(store kvstore.Store) *LoginLimiter {
	return &LoginLimiter{store: store}
}

// CheckAndRecord counts one attempt for originKey and returns
// model.ErrRateLimited once the window holds more than MaxLoginAttempts.
// Every call counts, including ones that are already over budget.
func (l *LoginLimiter) CheckAndRecord(ctx context.Context, originKey string) error {
	key := loginKeyPrefix + originKey

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}

	if count == 1 {
		// The window must be set even if the caller has gone away by now.
		cleanup := context.WithoutCancel(ctx)
		if err := l.store.Expire(cleanup, key, LoginWindow); err != nil {
			if delErr := l.store.Del(cleanup, key); delErr != nil {
				slog.Error("login counter left without expiry", "key", key, "error", delErr)
			}
			return fmt.Errorf("set login window: %w", err)
		}
	}

	if count > MaxLoginAttempts {
		return model.ErrRateLimited
	}

	return nil
}
