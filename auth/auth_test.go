package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256(t *testing.T) {
	secret := []byte("test-secret")
	v := &HS256{Secret: secret}

	t.Run("valid token", func(t *testing.T) {
		tok, err := NewHS256Token(secret, "user-1", time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		claims, err := v.ParseAndValidate(tok)
		if err != nil {
			t.Fatalf("expected valid token, got %v", err)
		}
		if claims.Subject != "user-1" {
			t.Errorf("expected subject 'user-1', got %q", claims.Subject)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := NewHS256Token([]byte("other"), "user-1", time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := v.ParseAndValidate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := v.ParseAndValidate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("other algorithm", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{}).SignedString(secret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := v.ParseAndValidate(tok); err == nil {
			t.Error("expected HS512 token to be rejected")
		}
	})
}

func TestBearerFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		target string
		want   string
		ok     bool
	}{
		{name: "header", header: "Bearer abc", target: "/", want: "abc", ok: true},
		{name: "lowercase scheme", header: "bearer abc", target: "/", want: "abc", ok: true},
		{name: "query", target: "/?access_token=xyz", want: "xyz", ok: true},
		{name: "missing", target: "/"},
		{name: "basic auth ignored", header: "Basic Zm9v", target: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerFromRequest(r)
			if got != tt.want || ok != tt.ok {
				t.Errorf("BearerFromRequest() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	secret := []byte("s")
	check := Authorize(&HS256{Secret: secret})

	r := httptest.NewRequest("GET", "/socket.io/", nil)
	if _, err := check(r); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}

	tok, err := NewHS256Token(secret, "u", 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	r = httptest.NewRequest("GET", "/socket.io/?access_token="+tok, nil)
	got, err := check(r)
	if err != nil {
		t.Fatalf("expected token to be accepted, got %v", err)
	}
	if claims, ok := got.(*Claims); !ok || claims.Subject != "u" {
		t.Errorf("expected claims for u, got %#v", got)
	}

	r = httptest.NewRequest("GET", "/socket.io/?access_token=garbage", nil)
	if _, err := check(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
