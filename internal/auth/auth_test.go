package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestPrincipalFromToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "42",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	principal, err := v.PrincipalFromToken(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if principal.ID != 42 {
		t.Fatalf("expected user 42, got %d", principal.ID)
	}
	if principal.Role != models.RoleAdmin {
		t.Fatalf("expected role admin, got %q", principal.Role)
	}
	if !principal.IsAdmin() {
		t.Fatal("expected admin capability")
	}
}

func TestPrincipalRoleDefaultsToOperator(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "7"})
	principal, err := v.PrincipalFromToken(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if principal.Role != models.RoleOperator {
		t.Fatalf("expected operator default, got %q", principal.Role)
	}
	if principal.IsAdmin() {
		t.Fatal("operator must not carry admin capability")
	}
}

func TestPrincipalFromTokenRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", signToken(t, "other-secret", jwt.MapClaims{"sub": "42"})},
		{"expired", signToken(t, testSecret, jwt.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing sub", signToken(t, testSecret, jwt.MapClaims{"role": "admin"})},
		{"non-numeric sub", signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})},
		{"zero sub", signToken(t, testSecret, jwt.MapClaims{"sub": "0"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.PrincipalFromToken(context.Background(), tc.token)
			if !errors.Is(err, apperr.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestRejectsNonHMACAlgorithm(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	// alg=none style token: header and claims without a signature.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "42"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.PrincipalFromToken(context.Background(), signed); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
