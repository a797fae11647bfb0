// Package kvstore holds the shared counter and key-value primitives used for
// login throttling and refresh token records. Every implementation must make
// Incr atomic; nothing else needs to be atomic across calls.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("key not found")
	ErrUnavailable = errors.New("store unavailable")
)

type Store interface {
	// Incr atomically increments the integer at key, creating it at 0 first,
	// and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a time-to-live on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Get returns ErrNotFound for absent or expired keys.
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites key and resets its time-to-live.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Del is a no-op for absent keys.
	Del(ctx context.Context, key string) error
}
