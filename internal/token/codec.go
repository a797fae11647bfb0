package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

// MinSecretLength is the shortest HMAC key the codec accepts.
const MinSecretLength = 32

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Credential is a freshly signed token together with the claims it carries.
type Credential struct {
	Value     string
	Kind      Kind
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	Kind Kind `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 tokens. It holds no mutable state after
// construction and is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}

	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

func (c *Codec) Issue(subject string, kind Kind, ttl time.Duration) (Credential, error) {
	if subject == "" {
		return Credential{}, errors.New("token subject is required")
	}
	if !kind.valid() {
		return Credential{}, fmt.Errorf("unknown token kind %q", kind)
	}

	// JWT dates have second precision; truncate so the returned times match the claims.
	now := c.now().UTC().Truncate(time.Second)
	cred := Credential{
		Kind:      kind,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.Subject,
			ID:        cred.ID,
			IssuedAt:  jwt.NewNumericDate(cred.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cred.ExpiresAt),
		},
	}).SignedString(c.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	cred.Value = signed
	return cred, nil
}

// Verify checks the signature, expiry and kind of tokenString and returns its
// subject. The only errors it returns wrap model.ErrTokenExpired or
// model.ErrTokenInvalid. A token of a different kind than expected is
// treated as invalid.
func (c *Codec) Verify(tokenString string, expected Kind) (string, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %v", model.ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
	}

	switch {
	case parsed.Kind != expected:
		return "", fmt.Errorf("%w: expected %s token, got %q", model.ErrTokenInvalid, expected, parsed.Kind)
	case parsed.Subject == "":
		return "", fmt.Errorf("%w: missing subject", model.ErrTokenInvalid)
	case parsed.ID == "":
		return "", fmt.Errorf("%w: missing token id", model.ErrTokenInvalid)
	case parsed.IssuedAt == nil:
		return "", fmt.Errorf("%w: missing issue time", model.ErrTokenInvalid)
	}

	return parsed.Subject, nil
}
