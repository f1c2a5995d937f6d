package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/tasklane/pkg/auth"
	"github.com/platinummonkey/tasklane/pkg/httputil"
)

// TokenValidator verifies a bearer token and returns the caller.
type TokenValidator interface {
	ValidateToken(token string) (*auth.AuthContext, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		optional:  optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		authCtx, err := m.validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.WithAuthContext(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return auth.FromContext(r.Context())
}

// RequireAuth rejects requests that reached it without an authenticated caller.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthContext(r) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
