package repository

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go-auth-service/internal/kvstore"
)

const refreshKeyPrefix = "refresh:"

// TokenRepository keeps the single current refresh token per subject. A Put
// replaces whatever was stored before, so the previous token stops
// validating even though its signature is still good.
type TokenRepository struct {
	store kvstore.Store
	ttl   time.Duration
}

func NewTokenRepository(store kvstore.Store, ttl time.Duration) *TokenRepository {
	return &TokenRepository{store: store, ttl: ttl}
}

func (r *TokenRepository) Put(ctx context.Context, subject string, token string) error {
	if err := r.store.Set(ctx, refreshKeyPrefix+subject, token, r.ttl); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Get returns ok=false when no token is stored for subject.
func (r *TokenRepository) Get(ctx context.Context, subject string) (string, bool, error) {
	token, err := r.store.Get(ctx, refreshKeyPrefix+subject)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load refresh token: %w", err)
	}
	return token, true, nil
}

func (r *TokenRepository) Validate(ctx context.Context, subject string, presented string) (bool, error) {
	current, ok, err := r.Get(ctx, subject)
	if err != nil || !ok {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(presented)) == 1, nil
}

func (r *TokenRepository) Remove(ctx context.Context, subject string) error {
	if err := r.store.Del(ctx, refreshKeyPrefix+subject); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
