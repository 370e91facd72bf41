package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chowdash/utils"

	"github.com/dgrijalva/jwt-go"
)

// Key type for context
type contextKey string

// UserContextKey carries the verified claims of the requester.
const UserContextKey = contextKey("user")

var (
	errNoAuthHeader = errors.New("Authorization header missing")
	errNotBearer    = errors.New("Authorization header must be a bearer token")
	errBadToken     = errors.New("Invalid token")
)

// parseBearer verifies a bearer token and returns its claims.
func parseBearer(header string) (*utils.Claims, error) {
	if header == "" {
		return nil, errNoAuthHeader
	}
	tokenStr, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenStr == "" {
		return nil, errNotBearer
	}

	claims := &utils.Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return utils.JwtKey, nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token and attaches the requester's
// claims to the context
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := parseBearer(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a subrouter to requesters holding one role. It expects
// AuthMiddleware to have run first.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(UserContextKey).(*utils.Claims)
			if !ok || claims.Role != role {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware ensures that the requester has admin privileges
func AdminMiddleware(next http.Handler) http.Handler {
	return RequireRole("admin")(next)
}
