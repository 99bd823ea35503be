package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

type stubVerifier struct {
	principal *models.Principal
}

func (v stubVerifier) PrincipalFromToken(_ context.Context, token string) (*models.Principal, error) {
	if token != "good-token" {
		return nil, apperr.ErrUnauthorized
	}
	return v.principal, nil
}

func TestRequireAuth(t *testing.T) {
	principal := &models.Principal{ID: 42, Role: models.RoleAdmin}
	mw := NewAuthMiddleware(stubVerifier{principal: principal})

	var seen *models.Principal
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer wrong", http.StatusUnauthorized},
		{"valid token", "Bearer good-token", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/job", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantStatus == http.StatusOK {
				if seen == nil || seen.ID != 42 {
					t.Fatalf("principal not propagated: %+v", seen)
				}
			} else if seen != nil {
				t.Fatal("handler ran for a rejected request")
			}
		})
	}
}

func TestGetPrincipalFromEmptyContext(t *testing.T) {
	if p := GetPrincipalFromContext(context.Background()); p != nil {
		t.Fatalf("expected nil principal, got %+v", p)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/job", "/job"},
		{"/job/123", "/job/:id"},
		{"/chat/45/messages", "/chat/:id/messages"},
		{"/notification/7/read", "/notification/:id/read"},
		{"/health", "/health"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Fatalf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
