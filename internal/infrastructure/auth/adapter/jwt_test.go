package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-chatline/internal/infrastructure/auth/adapter"
	chat "go-chatline/internal/pkg/chat/application/domain"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := adapter.NewJWTVerifier("s3cret")
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	tok, err := v.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, in := range []string{tok, "Bearer " + tok} {
		got, err := v.Verify(context.Background(), in)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got != "user-1" {
			t.Fatalf("expected user-1, got %q", got)
		}
	}
}

func TestJWTVerifierAcceptsSubjectOnly(t *testing.T) {
	v, _ := adapter.NewJWTVerifier("s3cret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-2",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := v.Verify(context.Background(), tok)
	if err != nil || got != "user-2" {
		t.Fatalf("expected user-2, got %q (%v)", got, err)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	v, _ := adapter.NewJWTVerifier("s3cret")
	other, _ := adapter.NewJWTVerifier("other")

	expired, _ := v.Issue("user-1", -time.Minute)
	foreign, _ := other.Issue("user-1", time.Minute)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "user-1"}).SignedString([]byte("s3cret"))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"id":  "user-1",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"foreign":   foreign,
		"no expiry": noExpiry,
		"wrong alg": wrongAlg,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tok); !errors.Is(err, chat.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	good, _ := v.Issue("user-1", time.Minute)
	if _, err := v.Verify(ctx, good); !errors.Is(err, chat.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated on cancelled context, got %v", err)
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := adapter.NewJWTVerifier(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
