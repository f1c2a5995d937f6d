// Package middleware authenticates HTTP requests.
//
// AuthMiddleware verifies "Authorization: Bearer <jwt>" and stores the caller
// as *auth.AuthContext in the request context:
//
//	authMW := middleware.NewAuthMiddleware(tokenManager, false)
//	router.Use(authMW.Handler)
//
// Authorization is not decided here. Routes that need a permission wrap
// their handler with rbac.Middleware.RequirePermission.
package middleware
