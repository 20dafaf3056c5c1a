// Package auth validates the bearer tokens presented on transport handshakes.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: bearer token required")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the JWT claims accepted on a handshake.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTValidator parses and validates a raw token.
type JWTValidator interface {
	ParseAndValidate(token string) (*Claims, error)
}

// HS256 validates tokens signed with a shared secret.
type HS256 struct {
	Secret []byte
}

// ParseAndValidate implements JWTValidator.
func (v *HS256) ParseAndValidate(raw string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewHS256Token signs a token for subject. A zero ttl yields a token without
// expiry.
func NewHS256Token(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerFromRequest extracts a bearer token from the Authorization header or
// the access_token query parameter.
func BearerFromRequest(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):]), true
	}
	if q := r.URL.Query().Get("access_token"); q != "" {
		return q, true
	}
	return "", false
}

// Authorize returns a request check that requires a token accepted by v. The
// parsed *Claims are returned for the session to keep.
func Authorize(v JWTValidator) func(r *http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		tok, ok := BearerFromRequest(r)
		if !ok || tok == "" {
			return nil, ErrMissingToken
		}
		claims, err := v.ParseAndValidate(tok)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}
}
