package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go-auth-service/internal/model"
)

type tokenValidator interface {
	ValidateAccessToken(tokenString string) (string, error)
}

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// Outcome is the state a request ends up in after the bearer check.
type Outcome int

const (
	// OutcomeAnonymous: no bearer credential, or verification failed for a
	// reason other than expiry or a bad token.
	OutcomeAnonymous Outcome = iota
	OutcomeVerified
	OutcomeRejected
)

const (
	ReasonExpired   = "expired"
	ReasonMalformed = "malformed"
)

type Result struct {
	Outcome Outcome
	Subject string
	Reason  string
}

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Resolve decides what an Authorization header value amounts to.
func (m *AuthMiddleware) Resolve(header string) Result {
	token, ok := bearerToken(header)
	if !ok {
		return Result{Outcome: OutcomeAnonymous}
	}

	subject, err := m.validate(token)
	switch {
	case err == nil:
		return Result{Outcome: OutcomeVerified, Subject: subject}
	case errors.Is(err, model.ErrTokenExpired):
		return Result{Outcome: OutcomeRejected, Reason: ReasonExpired}
	case errors.Is(err, model.ErrTokenInvalid):
		return Result{Outcome: OutcomeRejected, Reason: ReasonMalformed}
	default:
		slog.Warn("access token check failed; continuing unauthenticated", "error", err)
		return Result{Outcome: OutcomeAnonymous}
	}
}

// Authenticate attaches the token subject to the request context. Requests
// without a bearer credential pass through so public routes stay reachable;
// expired or invalid tokens are rejected here.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := m.Resolve(r.Header.Get("Authorization"))

		switch result.Outcome {
		case OutcomeRejected:
			if result.Reason == ReasonExpired {
				writeUnauthorized(w, "TOKEN_EXPIRED", "access token has expired")
			} else {
				writeUnauthorized(w, "TOKEN_INVALID", "access token is invalid")
			}
			return
		case OutcomeVerified:
			ctx := context.WithValue(r.Context(), subjectContextKey, result.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		default:
			ctx := context.WithValue(r.Context(), subjectContextKey, "")
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok && subject != ""
}

func (m *AuthMiddleware) validate(token string) (subject string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("token validator panicked: %v", recovered)
		}
	}()
	return m.validator.ValidateAccessToken(token)
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}

	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, code string, message string) {
	writeJSON(w, http.StatusUnauthorized, model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	})
}
