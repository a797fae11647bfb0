package model

import "errors"

var (
	// Account errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidPassword   = errors.New("invalid password")

	// Login throttling
	ErrRateLimited = errors.New("too many login attempts")

	// Token errors
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token malformed or forged")
	ErrRefreshTokenInvalid = errors.New("refresh token is not current")

	// Access errors
	ErrUnauthorized = errors.New("unauthorized")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
