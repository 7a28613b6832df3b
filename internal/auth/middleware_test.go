package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_SkipsUnprotectedPaths(t *testing.T) {
	mw := AuthMiddleware(newTestTokenService())

	for _, path := range []string{
		"/healthz",
		"/metrics",
		"/api/v1/auth/login",
		"/api/v1/auth/refresh",
		"/api/v1/auth/logout",
		"/api/v1/auth/setup",
		"/api/v1/auth/setup/status",
		"/api/v1/health",
		"/api/v1/ws/qc",
	} {
		t.Run(path, func(t *testing.T) {
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Errorf("handler should have been called for %s", path)
			}
		})
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"bad token", "Bearer invalid.jwt.token"},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
	}
	mw := AuthMiddleware(newTestTokenService())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/qc/measurements", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q, want application/problem+json", ct)
			}
		})
	}
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	ts := newTestTokenService()
	mw := AuthMiddleware(ts)

	token, err := ts.IssueAccessToken(&User{ID: "user-1", Username: "maria", Role: RoleAnalyst})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	var gotClaims *Claims
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/qc/measurements", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if gotClaims == nil {
		t.Fatal("expected claims in context")
	}
	if gotClaims.UserID != "user-1" || gotClaims.Username != "maria" {
		t.Errorf("claims = %+v, want user-1/maria", gotClaims)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		claims *Claims
		want   int
	}{
		{"unauthenticated", nil, http.StatusUnauthorized},
		{"viewer", &Claims{UserID: "v", Role: string(RoleViewer)}, http.StatusForbidden},
		{"analyst", &Claims{UserID: "a", Role: string(RoleAnalyst)}, http.StatusOK},
		{"admin", &Claims{UserID: "root", Role: string(RoleAdmin)}, http.StatusOK},
	}

	guarded := RequireRole(RoleAdmin, RoleAnalyst)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/qc/measurements/m1", http.NoBody)
			if tt.claims != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tt.claims))
			}
			w := httptest.NewRecorder()
			guarded(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestUserFromContext_Nil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if claims := UserFromContext(req.Context()); claims != nil {
		t.Error("expected nil claims for empty context")
	}
}
