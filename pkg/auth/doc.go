// Package auth verifies bearer tokens and carries the authenticated caller
// through the request context.
//
// Tokens are HS256 JWTs with a numeric "uid" claim:
//
//	tm := auth.NewTokenManager(secret, "tasklane", "tasklane-api", 12*time.Hour)
//	token, _ := tm.Issue(42, auth.RoleMember)
//	ac, err := tm.ValidateToken(token)
//
// The "role" claim is coarse and informational. Whether a caller may perform
// an action is decided by the rbac package.
package auth
