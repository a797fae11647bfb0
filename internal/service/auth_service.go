package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

// UserDirectory is the account storage the service reads and creates
// accounts in. Lookups by email are case-insensitive. Missing accounts are
// reported as model.ErrUserNotFound.
type UserDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
}

type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

type TokenCodec interface {
	Issue(subject string, kind token.Kind, ttl time.Duration) (token.Credential, error)
	Verify(tokenString string, expected token.Kind) (string, error)
}

type RefreshTokenStore interface {
	Put(ctx context.Context, subject string, token string) error
	Validate(ctx context.Context, subject string, presented string) (bool, error)
	Remove(ctx context.Context, subject string) error
}

type LoginLimiter interface {
	CheckAndRecord(ctx context.Context, originKey string) error
}

type AuthService struct {
	users      UserDirectory
	hasher     PasswordHasher
	codec      TokenCodec
	refresh    RefreshTokenStore
	limiter    LoginLimiter
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type AuthServiceDeps struct {
	Users      UserDirectory
	Hasher     PasswordHasher
	Codec      TokenCodec
	Refresh    RefreshTokenStore
	Limiter    LoginLimiter
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewAuthService(deps AuthServiceDeps) (*AuthService, error) {
	switch {
	case deps.Users == nil, deps.Hasher == nil, deps.Codec == nil, deps.Refresh == nil, deps.Limiter == nil:
		return nil, errors.New("auth service: all dependencies are required")
	case deps.AccessTTL <= 0 || deps.RefreshTTL <= 0:
		return nil, errors.New("auth service: token TTLs must be positive")
	}

	return &AuthService{
		users:      deps.Users,
		hasher:     deps.Hasher,
		codec:      deps.Codec,
		refresh:    deps.Refresh,
		limiter:    deps.Limiter,
		accessTTL:  deps.AccessTTL,
		refreshTTL: deps.RefreshTTL,
		now:        time.Now,
	}, nil
}

func (s *AuthService) Signup(ctx context.Context, email string, password string) (model.UserView, error) {
	email = strings.TrimSpace(email)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.UserView{}, err
	}
	if exists {
		return model.UserView{}, model.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.UserView{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return model.UserView{}, err
	}

	slog.Info("account created", "user_id", user.ID)
	return user.View(), nil
}

// Login throttles by originKey before anything else, so a client over budget
// learns nothing about the account or the password.
func (s *AuthService) Login(ctx context.Context, email string, password string, originKey string) (model.TokenPair, error) {
	if err := s.limiter.CheckAndRecord(ctx, originKey); err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			slog.Warn("login rate limited", "origin", originKey)
		}
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return model.TokenPair{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !ok {
		return model.TokenPair{}, model.ErrInvalidPassword
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return model.TokenPair{}, err
	}

	slog.Info("login succeeded", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates the refresh token: the presented one must be the token
// currently stored for its subject, and is replaced by a new one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	subject, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}

	current, err := s.refresh.Validate(ctx, subject, refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !current {
		slog.Warn("stale refresh token presented", "user_id", subject)
		return model.TokenPair{}, model.ErrRefreshTokenInvalid
	}

	if _, err := s.users.FindByID(ctx, subject); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			if rmErr := s.refresh.Remove(ctx, subject); rmErr != nil {
				slog.Warn("refresh record of deleted account not removed", "user_id", subject, "error", rmErr)
			}
		}
		return model.TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, subject)
	if err != nil {
		return model.TokenPair{}, err
	}

	slog.Info("refresh token rotated", "user_id", subject)
	return pair, nil
}

// Logout drops the stored refresh token. Access tokens already handed out
// stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	if err := s.refresh.Remove(ctx, subject); err != nil {
		return err
	}

	slog.Info("logged out", "user_id", subject)
	return nil
}

func (s *AuthService) Me(ctx context.Context, subject string) (model.UserView, error) {
	user, err := s.users.FindByID(ctx, subject)
	if err != nil {
		return model.UserView{}, err
	}
	return user.View(), nil
}

// ValidateAccessToken returns the subject of a valid access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (string, error) {
	return s.codec.Verify(tokenString, token.KindAccess)
}

func (s *AuthService) issuePair(ctx context.Context, subject string) (model.TokenPair, error) {
	access, err := s.codec.Issue(subject, token.KindAccess, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	refresh, err := s.codec.Issue(subject, token.KindRefresh, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.refresh.Put(ctx, subject, refresh.Value); err != nil {
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}
