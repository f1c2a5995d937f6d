package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/tasklane/pkg/contextkeys"
)

// Role is the coarse account role carried in the token. It is informational:
// authorization decisions go through the permission resolver.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Claims are the JWT claims issued for a tasklane session.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthContext holds the authenticated caller for a request.
type AuthContext struct {
	UserID int64
	Role   Role
}

// IsRole reports whether the caller carries the given coarse role.
func (ac *AuthContext) IsRole(role Role) bool {
	return ac != nil && ac.Role == role
}

// WithAuthContext attaches ac to ctx and records the user id for logging.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	ctx = contextkeys.WithAuth(ctx, ac)
	return contextkeys.WithUserID(ctx, ac.UserID)
}

// FromContext returns the authenticated caller, or nil.
func FromContext(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return ac
}
