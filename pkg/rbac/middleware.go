package rbac

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tasklane/pkg/auth"
	"github.com/platinummonkey/tasklane/pkg/httputil"
	"github.com/platinummonkey/tasklane/pkg/middleware"
	"github.com/platinummonkey/tasklane/pkg/observability"
)

// ScopeFunc extracts the project scope of a request. A nil scope means the
// check is unscoped.
type ScopeFunc func(r *http.Request) (*int64, error)

// NoScope checks against unscoped and global assignments only.
func NoScope(*http.Request) (*int64, error) { return nil, nil }

// ScopeFromPath reads the project id from the named mux path variable.
func ScopeFromPath(name string) ScopeFunc {
	return func(r *http.Request) (*int64, error) {
		raw, ok := mux.Vars(r)[name]
		if !ok || raw == "" {
			return nil, nil
		}
		return parseScopeID(name, raw)
	}
}

// ScopeFromQuery reads the project id from the named query parameter.
func ScopeFromQuery(name string) ScopeFunc {
	return func(r *http.Request) (*int64, error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, nil
		}
		return parseScopeID(name, raw)
	}
}

func parseScopeID(name, raw string) (*int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &id, nil
}

// Middleware gates handlers on permission checks.
type Middleware struct {
	checker     Checker
	bypassRoles map[auth.Role]bool
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// AllowRoleBypass lets callers holding one of the coarse token roles skip
// the permission check. Each bypass is logged as its own decision.
func AllowRoleBypass(roles ...auth.Role) MiddlewareOption {
	return func(m *Middleware) {
		for _, role := range roles {
			m.bypassRoles[role] = true
		}
	}
}

// NewMiddleware creates a new permission middleware
func NewMiddleware(checker Checker, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		checker:     checker,
		bypassRoles: map[auth.Role]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequirePermission requires key in the scope chosen by scope. It responds
// 401 without an authenticated caller and 403 when the check does not pass;
// a failed check is indistinguishable from a denied one.
func (m *Middleware) RequirePermission(key string, scope ScopeFunc) func(http.Handler) http.Handler {
	return m.require([]string{key}, scope)
}

// RequireAnyPermission requires at least one of keys.
func (m *Middleware) RequireAnyPermission(keys []string, scope ScopeFunc) func(http.Handler) http.Handler {
	return m.require(keys, scope)
}

func (m *Middleware) require(keys []string, scope ScopeFunc) func(http.Handler) http.Handler {
	if scope == nil {
		scope = NoScope
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := middleware.GetAuthContext(r)
			if authCtx == nil || authCtx.UserID <= 0 {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			scopeID, err := scope(r)
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}

			logger := observability.FromContext(r.Context()).WithFields(map[string]interface{}{
				"permissions": keys,
				"scope_id":    scopeLogValue(scopeID),
			})

			if m.bypassRoles[authCtx.Role] {
				logger.WithField("role", string(authCtx.Role)).Info("permission check bypassed by role")
				next.ServeHTTP(w, r)
				return
			}

			if !m.checker.HasAnyPermission(r.Context(), authCtx.UserID, keys, scopeID) {
				logger.Debug("permission denied")
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
