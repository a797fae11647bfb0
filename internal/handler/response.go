package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrUserAlreadyExists):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "Email is already registered"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusUnauthorized
		body.Code = "USER_NOT_FOUND"
		body.Message = "No account for this identity"
	case errors.Is(err, model.ErrInvalidPassword):
		status = http.StatusUnauthorized
		body.Code = "INVALID_PASSWORD"
		body.Message = "Password does not match"
	case errors.Is(err, model.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		status = http.StatusTooManyRequests
		body.Code = "RATE_LIMITED"
		body.Message = "Too many login attempts, try again later"
	case errors.Is(err, model.ErrTokenExpired):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_EXPIRED"
		body.Message = "Token has expired"
	case errors.Is(err, model.ErrTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "TOKEN_INVALID"
		body.Message = "Token is invalid"
	case errors.Is(err, model.ErrRefreshTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "REFRESH_TOKEN_INVALID"
		body.Message = "Refresh token is no longer valid"
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
