package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chowdash/utils"
)

func TestAuthMiddleware(t *testing.T) {
	utils.JwtKey = []byte("test-secret")
	token, err := utils.GenerateJWT("6617f1a2b3c4d5e6f7a8b9c0", "amaka@example.com", "customer")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(UserContextKey).(*utils.Claims)
		if !ok {
			t.Error("claims missing from context")
		} else if claims.Email != "amaka@example.com" || claims.Role != "customer" {
			t.Errorf("unexpected claims: %+v", claims)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		claims *utils.Claims
		want   int
	}{
		{"admin passes", &utils.Claims{Role: "admin"}, http.StatusNoContent},
		{"customer forbidden", &utils.Claims{Role: "customer"}, http.StatusForbidden},
		{"no claims forbidden", nil, http.StatusForbidden},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/reviews", nil)
			if c.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserContextKey, c.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Errorf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}
