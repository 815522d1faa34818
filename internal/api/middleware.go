package api

import (
	"context"
	"net/http"
	"strings"

	"barter/internal/auth"
)

type contextKey string

const (
	accountIDKey contextKey = "accountID"
	profileIDKey contextKey = "profileID"
)

type AccessTokenValidator interface {
	Validate(token string, expected auth.TokenType) (*auth.Claims, error)
}

type AuthMiddleware struct {
	tokens AccessTokenValidator
}

func NewAuthMiddleware(tokens AccessTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.tokens.Validate(parts[1], auth.TokenAccess)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, claims.Subject)
		ctx = context.WithValue(ctx, profileIDKey, claims.ProfileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetAccountID(r *http.Request) string {
	v, _ := r.Context().Value(accountIDKey).(string)
	return v
}

func GetProfileID(r *http.Request) string {
	v, _ := r.Context().Value(profileIDKey).(string)
	return v
}
