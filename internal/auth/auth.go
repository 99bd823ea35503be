// Package auth resolves bearer tokens to principals. Token issuance lives
// in the identity service; this side only verifies.
package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

// Verifier resolves a credential to a verified principal. Implementations
// return apperr.ErrUnauthorized for anything that does not verify.
type Verifier interface {
	PrincipalFromToken(ctx context.Context, token string) (*models.Principal, error)
}

// JWTVerifier verifies HS256 bearer tokens. Claims: "sub" carries the user
// id, "role" the capability role.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// PrincipalFromToken parses and verifies the token.
func (v *JWTVerifier) PrincipalFromToken(_ context.Context, token string) (*models.Principal, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, apperr.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperr.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return nil, apperr.ErrUnauthorized
	}

	role := models.RoleOperator
	if r, ok := claims["role"].(string); ok && r != "" {
		role = models.Role(r)
	}

	return &models.Principal{ID: userID, Role: role}, nil
}
