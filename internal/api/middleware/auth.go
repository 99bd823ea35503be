package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/OpenFieldOps/open-job-api/internal/auth"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// AuthMiddleware resolves bearer tokens to principals for REST handlers.
// The websocket gateway does its own resolution during the handshake.
type AuthMiddleware struct {
	verifier auth.Verifier
}

// NewAuthMiddleware creates an auth middleware over the given verifier.
func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth rejects requests without a verifiable bearer token and puts
// the principal into the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		principal, err := m.verifier.PrincipalFromToken(r.Context(), token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetPrincipalFromContext retrieves the authenticated principal from the
// request context.
func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	principal, ok := ctx.Value(PrincipalContextKey).(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
