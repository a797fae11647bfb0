package handler

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

const (
	maxBodyBytes = 1 << 20
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

type AuthHandler struct {
	service    *service.AuthService
	trustProxy bool
}

func NewAuthHandler(service *service.AuthService, trustProxy bool) *AuthHandler {
	return &AuthHandler{service: service, trustProxy: trustProxy}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload model.SignupRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := validateCredentials(payload.Email, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Signup(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := validateCredentials(payload.Email, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), payload.Email, payload.Password, middleware.ClientIP(r, h.trustProxy))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "refresh_token is required", "refresh_token", http.StatusBadRequest))
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), subject); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	user, err := h.service.Me(r.Context(), subject)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}

func validateCredentials(email string, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "email is required", "email", http.StatusBadRequest)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "email is not a valid address", "email", http.StatusBadRequest)
	}

	if password == "" {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "password is required", "password", http.StatusBadRequest)
	}
	if len(password) > maxPasswordBytes {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "password is too long", "password", http.StatusBadRequest)
	}

	return nil
}
