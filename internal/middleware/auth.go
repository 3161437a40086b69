package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sokoni-collective/sokoni/internal/auth"
)

// TokenValidator validates a bearer token and returns its claims.
// Satisfied by *auth.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Auth returns middleware that authenticates requests with a Bearer token.
// On success the user id and role are stored in the request context for
// downstream handlers and the logging middleware. Requests without a valid
// access token are rejected with 401 Unauthorized.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				_ = SetErrorCode(r.Context(), "missing_token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code = "expired_token"
				}
				_ = SetErrorCode(r.Context(), code)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Refresh tokens are only good for the token endpoints.
			if claims.Type != auth.TokenTypeAccess {
				_ = SetErrorCode(r.Context(), "wrong_token_type")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			ctx = SetUserRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
